package tracing

import (
	"strings"
)

const (
	// DefaultMaxLength 默认最大属性长度
	DefaultMaxLength = 200
	// MaxAnswerLength 访谈回答写入 span 时的最大长度
	MaxAnswerLength = 120
)

// piiFields 简历中需要掩码的字段
var piiFields = map[string]bool{
	"name":     true,
	"phone":    true,
	"email":    true,
	"location": true,
	"address":  true,
}

// SafeAttributeValue 敏感字段返回掩码值，其余截断到 maxLength
func SafeAttributeValue(name string, value string, maxLength int) string {
	lower := strings.ToLower(name)
	for keyword := range piiFields {
		if strings.Contains(lower, keyword) {
			return MaskPII(value)
		}
	}
	return TruncateString(value, maxLength)
}

// MaskPII 掩码处理个人信息。
// "Jane" -> "J**e"，"jane@example.com" -> "ja************om"
func MaskPII(value string) string {
	if value == "" {
		return ""
	}

	runes := []rune(value)
	n := len(runes)
	switch {
	case n <= 1:
		return "*"
	case n == 2:
		return string(runes[0:1]) + "*"
	case n <= 4:
		return string(runes[0:1]) + strings.Repeat("*", n-2) + string(runes[n-1:])
	}
	return string(runes[0:2]) + strings.Repeat("*", n-4) + string(runes[n-2:])
}

// TruncateString 截断字符串，保留首尾并以省略号连接
func TruncateString(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(runes[:maxLength])
	}

	half := (maxLength - 3) / 2
	if half < 1 {
		half = 1
	}
	return string(runes[:half]) + "..." + string(runes[len(runes)-half:])
}
