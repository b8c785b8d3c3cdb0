package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-builder/internal/types"
)

func TestRulesTextFields(t *testing.T) {
	r := NewRules()
	ctx := context.Background()

	answers, err := r.Extract(ctx, "  Backend Engineer ", types.FieldTitle)
	require.NoError(t, err)
	assert.Equal(t, types.Answers{types.FieldTitle: types.TextValue("Backend Engineer")}, answers)

	_, err = r.Extract(ctx, "   ", types.FieldSummary)
	require.ErrorIs(t, err, ErrUnrecognized)
}

func TestRulesName(t *testing.T) {
	r := NewRules()
	ctx := context.Background()

	answers, err := r.Extract(ctx, "Jane Smith", types.FieldName)
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", answers.Text(types.FieldName))
	assert.False(t, answers.Has(types.FieldTitle))

	answers, err = r.Extract(ctx, "John Doe, Software Engineer", types.FieldName)
	require.NoError(t, err)
	assert.Equal(t, "John Doe", answers.Text(types.FieldName))
	assert.Equal(t, "Software Engineer", answers.Text(types.FieldTitle))

	_, err = r.Extract(ctx, "call me at 555-1234", types.FieldName)
	require.ErrorIs(t, err, ErrUnrecognized)
}

func TestRulesContact(t *testing.T) {
	r := NewRules()
	ctx := context.Background()

	answers, err := r.Extract(ctx, "+1 (555) 123-4567", types.FieldPhone)
	require.NoError(t, err)
	assert.Equal(t, "+1 (555) 123-4567", answers.Text(types.FieldPhone))

	_, err = r.Extract(ctx, "12345", types.FieldPhone)
	require.ErrorIs(t, err, ErrUnrecognized)

	_, err = r.Extract(ctx, "ask my manager", types.FieldPhone)
	require.ErrorIs(t, err, ErrUnrecognized)

	answers, err = r.Extract(ctx, "Jane <jane@example.com>", types.FieldEmail)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", answers.Text(types.FieldEmail))

	_, err = r.Extract(ctx, "not an email", types.FieldEmail)
	require.ErrorIs(t, err, ErrUnrecognized)
}

func TestRulesLists(t *testing.T) {
	r := NewRules()

	answers, err := r.Extract(context.Background(), "python, go, ,go;  sql", types.FieldSkills)
	require.NoError(t, err)
	assert.Equal(t, []string{"python", "go", "go", "sql"}, answers[types.FieldSkills].Items)

	_, err = r.Extract(context.Background(), ", ;", types.FieldLanguages)
	require.ErrorIs(t, err, ErrUnrecognized)
}

func TestRulesEducation(t *testing.T) {
	answers, err := NewRules().Extract(context.Background(), "MIT, Cambridge MA", types.FieldEducation)
	require.NoError(t, err)
	assert.Equal(t, "MIT", answers.Text(types.FieldEducation))
	assert.Equal(t, "Cambridge MA", answers.Text(types.FieldEducationLocation))
}

func TestRulesStructuredEntries(t *testing.T) {
	r := NewRules()
	ctx := context.Background()

	answers, err := r.Extract(ctx, "Ledger: double-entry bookkeeping; Crawler", types.FieldProjects)
	require.NoError(t, err)
	assert.Equal(t, []types.Project{
		{Name: "Ledger", Description: "double-entry bookkeeping"},
		{Name: "Crawler"},
	}, answers[types.FieldProjects].Projects)

	answers, err = r.Extract(ctx, "Engineer, Acme, 2020-2023, built APIs, and tooling", types.FieldExperience)
	require.NoError(t, err)
	assert.Equal(t, []types.Experience{{
		Title:       "Engineer",
		Company:     "Acme",
		Duration:    "2020-2023",
		Description: "built APIs, and tooling",
	}}, answers[types.FieldExperience].Experience)

	answers, err = r.Extract(ctx, "CKA, CNCF, 2022\nAWS SAA, Amazon", types.FieldCertifications)
	require.NoError(t, err)
	assert.Equal(t, []types.Certification{
		{Title: "CKA", Issuer: "CNCF", Date: "2022"},
		{Title: "AWS SAA", Issuer: "Amazon"},
	}, answers[types.FieldCertifications].Certifications)

	_, err = r.Extract(ctx, ": no name", types.FieldProjects)
	require.ErrorIs(t, err, ErrUnrecognized)
}
