// Package assembler 将访谈答案投影为完整的简历结构
package assembler

import (
	"errors"
	"fmt"
	"strings"

	"resume-builder/internal/types"
)

// ErrIncompleteRequiredFields 必填字段缺失。只会在会话完成前调用 Assemble 时出现，属于调用顺序错误
var ErrIncompleteRequiredFields = errors.New("简历必填字段不完整")

// Project 纯投影：未回答的字段映射为默认值（空列表或空字符串）。
// 不修改 answers，对同一份答案重复调用结果相同。
func Project(answers types.Answers) types.Resume {
	r := types.Resume{
		Name:           answers.Text(types.FieldName),
		Title:          answers.Text(types.FieldTitle),
		Phone:          answers.Text(types.FieldPhone),
		Email:          answers.Text(types.FieldEmail),
		Location:       answers.Text(types.FieldLocation),
		Summary:        answers.Text(types.FieldSummary),
		Education:      []types.Education{},
		Skills:         copyStrings(answers[types.FieldSkills].Items),
		Projects:       []types.Project{},
		Experience:     []types.Experience{},
		Certifications: []types.Certification{},
		Languages:      copyStrings(answers[types.FieldLanguages].Items),
	}

	// 学位、年份、成绩依附于院校，没有院校时忽略
	if institution := answers.Text(types.FieldEducation); institution != "" {
		r.Education = append(r.Education, types.Education{
			Institution: institution,
			Location:    answers.Text(types.FieldEducationLocation),
			Degree:      answers.Text(types.FieldEducationDegree),
			YearRange:   answers.Text(types.FieldEducationYears),
			Grade:       answers.Text(types.FieldEducationGrade),
		})
	}

	r.Projects = append(r.Projects, answers[types.FieldProjects].Projects...)
	r.Experience = append(r.Experience, answers[types.FieldExperience].Experience...)
	r.Certifications = append(r.Certifications, answers[types.FieldCertifications].Certifications...)
	return r
}

// Assemble 投影并校验必填字段
func Assemble(answers types.Answers) (types.Resume, error) {
	r := Project(answers)
	if missing := r.MissingRequired(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, f := range missing {
			names[i] = string(f)
		}
		return r, fmt.Errorf("%w: %s", ErrIncompleteRequiredFields, strings.Join(names, ", "))
	}
	return r, nil
}

func copyStrings(in []string) []string {
	out := make([]string, 0, len(in))
	return append(out, in...)
}
