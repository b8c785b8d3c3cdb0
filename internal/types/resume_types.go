package types

import "strings"

// FieldID 简历字段标识，问卷中的每个问题绑定一个字段
type FieldID string

const (
	FieldName     FieldID = "name"
	FieldTitle    FieldID = "title"
	FieldPhone    FieldID = "phone"
	FieldEmail    FieldID = "email"
	FieldLocation FieldID = "location"
	FieldSummary  FieldID = "summary"

	// 教育经历拆分为多个子字段，由装配器合并为一条记录
	FieldEducation         FieldID = "education"
	FieldEducationLocation FieldID = "education_location"
	FieldEducationDegree   FieldID = "education_degree"
	FieldEducationYears    FieldID = "education_years"
	FieldEducationGrade    FieldID = "education_grade"

	FieldSkills         FieldID = "skills"
	FieldProjects       FieldID = "projects"
	FieldExperience     FieldID = "experience"
	FieldCertifications FieldID = "certifications"
	FieldLanguages      FieldID = "languages"
)

// FieldKind 字段值的类型
type FieldKind int

const (
	KindUnknown FieldKind = iota
	KindText
	KindList
	KindProjects
	KindExperience
	KindCertifications
)

var fieldKinds = map[FieldID]FieldKind{
	FieldName:              KindText,
	FieldTitle:             KindText,
	FieldPhone:             KindText,
	FieldEmail:             KindText,
	FieldLocation:          KindText,
	FieldSummary:           KindText,
	FieldEducation:         KindText,
	FieldEducationLocation: KindText,
	FieldEducationDegree:   KindText,
	FieldEducationYears:    KindText,
	FieldEducationGrade:    KindText,
	FieldSkills:            KindList,
	FieldLanguages:         KindList,
	FieldProjects:          KindProjects,
	FieldExperience:        KindExperience,
	FieldCertifications:    KindCertifications,
}

// Kind 返回字段的值类型，未知字段返回 KindUnknown
func (f FieldID) Kind() FieldKind {
	return fieldKinds[f]
}

// Valid 判断字段是否属于简历结构
func (f FieldID) Valid() bool {
	_, ok := fieldKinds[f]
	return ok
}

// RequiredFields 简历必填字段
var RequiredFields = []FieldID{FieldName, FieldTitle}

// Education 教育经历
type Education struct {
	Institution string `json:"institution"`
	Location    string `json:"location,omitempty"`
	Degree      string `json:"degree,omitempty"`
	YearRange   string `json:"year_range,omitempty"`
	Grade       string `json:"grade,omitempty"`
}

// Project 项目经历
type Project struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Experience 工作经历
type Experience struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Duration    string `json:"duration"`
	Description string `json:"description"`
}

// Certification 证书
type Certification struct {
	Title  string `json:"title"`
	Issuer string `json:"issuer"`
	Date   string `json:"date"`
}

// Resume 简历结构。列表字段默认为空切片而非 nil，便于序列化为 []
type Resume struct {
	Name           string          `json:"name"`
	Title          string          `json:"title"`
	Phone          string          `json:"phone,omitempty"`
	Email          string          `json:"email,omitempty"`
	Location       string          `json:"location,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	Education      []Education     `json:"education"`
	Skills         []string        `json:"skills"`
	Projects       []Project       `json:"projects"`
	Experience     []Experience    `json:"experience"`
	Certifications []Certification `json:"certifications"`
	Languages      []string        `json:"languages"`
}

// MissingRequired 返回缺失的必填字段
func (r Resume) MissingRequired() []FieldID {
	var missing []FieldID
	if strings.TrimSpace(r.Name) == "" {
		missing = append(missing, FieldName)
	}
	if strings.TrimSpace(r.Title) == "" {
		missing = append(missing, FieldTitle)
	}
	return missing
}

// Value 字段的类型化取值，按字段类型只填充其中一项
type Value struct {
	Text           string          `json:"text,omitempty"`
	Items          []string        `json:"items,omitempty"`
	Projects       []Project       `json:"projects,omitempty"`
	Experience     []Experience    `json:"experience,omitempty"`
	Certifications []Certification `json:"certifications,omitempty"`
}

// TextValue 构造文本值
func TextValue(s string) Value { return Value{Text: s} }

// ListValue 构造列表值
func ListValue(items ...string) Value { return Value{Items: items} }

// IsZero 判断取值是否为空
func (v Value) IsZero() bool {
	return strings.TrimSpace(v.Text) == "" &&
		len(v.Items) == 0 &&
		len(v.Projects) == 0 &&
		len(v.Experience) == 0 &&
		len(v.Certifications) == 0
}

// Clone 深拷贝
func (v Value) Clone() Value {
	out := Value{Text: v.Text}
	if v.Items != nil {
		out.Items = append([]string(nil), v.Items...)
	}
	if v.Projects != nil {
		out.Projects = append([]Project(nil), v.Projects...)
	}
	if v.Experience != nil {
		out.Experience = append([]Experience(nil), v.Experience...)
	}
	if v.Certifications != nil {
		out.Certifications = append([]Certification(nil), v.Certifications...)
	}
	return out
}

// Answers 已收集的答案，字段到取值的映射
type Answers map[FieldID]Value

// Has 判断字段是否已有非空答案
func (a Answers) Has(field FieldID) bool {
	v, ok := a[field]
	return ok && !v.IsZero()
}

// Text 返回文本字段的值
func (a Answers) Text(field FieldID) string {
	return strings.TrimSpace(a[field].Text)
}

// Clone 深拷贝答案集合
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v.Clone()
	}
	return out
}
