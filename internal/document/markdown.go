package document

import (
	"strings"

	"resume-builder/internal/types"
)

// MarkdownRenderer 将简历渲染为 Markdown，用于预览
type MarkdownRenderer struct{}

var _ Renderer = MarkdownRenderer{}

// ContentType 实现 Renderer
func (MarkdownRenderer) ContentType() string { return "text/markdown; charset=utf-8" }

// Extension 实现 Renderer
func (MarkdownRenderer) Extension() string { return ".md" }

// Render 实现 Renderer
func (MarkdownRenderer) Render(r types.Resume) ([]byte, error) {
	return []byte(Markdown(r)), nil
}

// Markdown 渲染 Markdown 文本：姓名为一级标题，职位为二级标题，章节为三级标题
func Markdown(r types.Resume) string {
	var sb strings.Builder
	for i, b := range layout(r) {
		if i > 0 && (b.kind == blockHeading || b.kind == blockSubheading) {
			sb.WriteString("\n")
		}
		switch b.kind {
		case blockName:
			sb.WriteString("# ")
		case blockTitle:
			sb.WriteString("## ")
		case blockHeading:
			sb.WriteString("### ")
		case blockSubheading:
			sb.WriteString("#### ")
		case blockBullet:
			sb.WriteString("- ")
		}
		for _, rn := range b.runs {
			sb.WriteString(markdownRun(rn))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func markdownRun(rn run) string {
	switch {
	case rn.text == "":
		return ""
	case rn.bold:
		return "**" + rn.text + "**"
	case rn.italic:
		return "_" + rn.text + "_"
	default:
		return rn.text
	}
}
