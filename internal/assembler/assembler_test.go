package assembler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-builder/internal/types"
)

func TestProjectDefaults(t *testing.T) {
	r := Project(types.Answers{})

	assert.Empty(t, r.Name)
	assert.NotNil(t, r.Education)
	assert.NotNil(t, r.Skills)
	assert.NotNil(t, r.Projects)
	assert.NotNil(t, r.Experience)
	assert.NotNil(t, r.Certifications)
	assert.NotNil(t, r.Languages)
	assert.Len(t, r.Skills, 0)
}

func TestProjectMergesEducation(t *testing.T) {
	answers := types.Answers{
		types.FieldEducation:       types.TextValue("MIT"),
		types.FieldEducationDegree: types.TextValue("BSc Computer Science"),
		types.FieldEducationYears:  types.TextValue("2016-2020"),
		types.FieldEducationGrade:  types.TextValue("3.9"),
	}

	r := Project(answers)
	require.Len(t, r.Education, 1)
	assert.Equal(t, types.Education{
		Institution: "MIT",
		Degree:      "BSc Computer Science",
		YearRange:   "2016-2020",
		Grade:       "3.9",
	}, r.Education[0])
}

func TestProjectIgnoresDegreeWithoutInstitution(t *testing.T) {
	r := Project(types.Answers{types.FieldEducationDegree: types.TextValue("PhD")})
	assert.Empty(t, r.Education)
}

func TestProjectIsPureAndRepeatable(t *testing.T) {
	answers := types.Answers{
		types.FieldName:   types.TextValue("Jane Smith"),
		types.FieldTitle:  types.TextValue("Backend Engineer"),
		types.FieldSkills: types.ListValue("python", "go", "go"),
		types.FieldProjects: {Projects: []types.Project{
			{Name: "Ledger", Description: "double-entry bookkeeping"},
		}},
	}
	before := answers.Clone()

	first := Project(answers)
	second := Project(answers)

	assert.Equal(t, first, second)
	assert.Equal(t, before, answers)
	assert.Equal(t, []string{"python", "go", "go"}, first.Skills)

	// 修改投影结果不影响答案
	first.Skills[0] = "rust"
	first.Projects[0].Name = "changed"
	assert.Equal(t, "python", answers[types.FieldSkills].Items[0])
	assert.Equal(t, "Ledger", answers[types.FieldProjects].Projects[0].Name)
}

func TestAssembleRequiresNameAndTitle(t *testing.T) {
	_, err := Assemble(types.Answers{types.FieldName: types.TextValue("Jane Smith")})
	require.ErrorIs(t, err, ErrIncompleteRequiredFields)
	assert.Contains(t, err.Error(), "title")

	r, err := Assemble(types.Answers{
		types.FieldName:  types.TextValue("Jane Smith"),
		types.FieldTitle: types.TextValue("Backend Engineer"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", r.Name)
	assert.Equal(t, "Backend Engineer", r.Title)
}
