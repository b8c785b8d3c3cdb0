package extractor

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"resume-builder/internal/types"
)

const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
	maxNameWords   = 6
)

// Rules 基于格式约定的提取器：
// 技能和语言以逗号分隔；项目为 "名称: 描述"，多个项目以分号或换行分隔；
// 工作经历为 "职位, 公司, 时长, 描述"；证书为 "名称, 颁发机构, 日期"。
type Rules struct{}

var _ Extractor = Rules{}

// NewRules 创建规则提取器
func NewRules() Rules { return Rules{} }

// Extract 实现 Extractor
func (Rules) Extract(_ context.Context, text string, field types.FieldID) (types.Answers, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrUnrecognized
	}

	var answers types.Answers
	switch field {
	case types.FieldName:
		answers = extractName(text)
	case types.FieldPhone:
		answers = extractPhone(text)
	case types.FieldEmail:
		answers = extractEmail(text)
	case types.FieldEducation:
		answers = extractInstitution(text)
	case types.FieldSkills, types.FieldLanguages:
		if items := splitList(text); len(items) > 0 {
			answers = types.Answers{field: types.ListValue(items...)}
		}
	case types.FieldProjects:
		answers = extractProjects(text)
	case types.FieldExperience:
		answers = extractExperience(text)
	case types.FieldCertifications:
		answers = extractCertifications(text)
	default:
		if field.Kind() != types.KindText {
			return nil, fmt.Errorf("%w: 不支持的字段 %s", ErrUnrecognized, field)
		}
		answers = types.Answers{field: types.TextValue(text)}
	}
	return sanitize(answers, field)
}

// extractName 支持 "Jane Smith, Backend Engineer" 一次填写姓名和职位
func extractName(text string) types.Answers {
	name, rest, combined := strings.Cut(text, ",")
	name = strings.TrimSpace(name)
	if !looksLikeName(name) {
		return nil
	}
	answers := types.Answers{types.FieldName: types.TextValue(name)}
	if title := strings.TrimSpace(rest); combined && title != "" {
		answers[types.FieldTitle] = types.TextValue(title)
	}
	return answers
}

func looksLikeName(s string) bool {
	words := strings.Fields(s)
	if len(words) == 0 || len(words) > maxNameWords {
		return false
	}
	hasLetter := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsSpace(r), r == '.', r == '-', r == '\'':
		default:
			return false
		}
	}
	return hasLetter
}

func extractPhone(text string) types.Answers {
	digits := 0
	for _, r := range text {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+', r == '-', r == '(', r == ')', r == '.', unicode.IsSpace(r):
		default:
			return nil
		}
	}
	if digits < minPhoneDigits || digits > maxPhoneDigits {
		return nil
	}
	return types.Answers{types.FieldPhone: types.TextValue(text)}
}

func extractEmail(text string) types.Answers {
	addr, err := mail.ParseAddress(text)
	if err != nil {
		return nil
	}
	return types.Answers{types.FieldEmail: types.TextValue(addr.Address)}
}

// extractInstitution "MIT, Cambridge MA" 同时填写院校和所在地
func extractInstitution(text string) types.Answers {
	institution, location, _ := strings.Cut(text, ",")
	answers := types.Answers{types.FieldEducation: types.TextValue(strings.TrimSpace(institution))}
	if loc := strings.TrimSpace(location); loc != "" {
		answers[types.FieldEducationLocation] = types.TextValue(loc)
	}
	return answers
}

func extractProjects(text string) types.Answers {
	var projects []types.Project
	for _, entry := range splitEntries(text) {
		name, desc, _ := strings.Cut(entry, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		projects = append(projects, types.Project{Name: name, Description: strings.TrimSpace(desc)})
	}
	return types.Answers{types.FieldProjects: {Projects: projects}}
}

func extractExperience(text string) types.Answers {
	var experience []types.Experience
	for _, entry := range splitEntries(text) {
		parts := splitFields(entry, 4)
		if parts[0] == "" {
			continue
		}
		experience = append(experience, types.Experience{
			Title:       parts[0],
			Company:     parts[1],
			Duration:    parts[2],
			Description: parts[3],
		})
	}
	return types.Answers{types.FieldExperience: {Experience: experience}}
}

func extractCertifications(text string) types.Answers {
	var certs []types.Certification
	for _, entry := range splitEntries(text) {
		parts := splitFields(entry, 3)
		if parts[0] == "" {
			continue
		}
		certs = append(certs, types.Certification{Title: parts[0], Issuer: parts[1], Date: parts[2]})
	}
	return types.Answers{types.FieldCertifications: {Certifications: certs}}
}

// splitList 按逗号、分号和换行切分，保留顺序和重复项
func splitList(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	return items
}

// splitEntries 按分号和换行切分多条记录
func splitEntries(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == ';' || r == '\n'
	})
	entries := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			entries = append(entries, p)
		}
	}
	return entries
}

// splitFields 按逗号切成固定 n 段，最后一段保留剩余内容
func splitFields(entry string, n int) []string {
	out := make([]string, n)
	for i, p := range strings.SplitN(entry, ",", n) {
		out[i] = strings.TrimSpace(p)
	}
	return out
}
