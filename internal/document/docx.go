package document

import (
	"bytes"
	"fmt"

	"github.com/fumiama/go-docx"

	"resume-builder/internal/types"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// 字号以半磅为单位
const (
	nameSize       = "48"
	titleSize      = "28"
	headingSize    = "28"
	subheadingSize = "24"
)

// DocxRenderer 生成 Word 文档
type DocxRenderer struct{}

var _ Renderer = DocxRenderer{}

// ContentType 实现 Renderer
func (DocxRenderer) ContentType() string { return docxContentType }

// Extension 实现 Renderer
func (DocxRenderer) Extension() string { return ".docx" }

// Render 生成 DOCX 字节。相同的简历得到相同的文档内容，但压缩包内条目顺序不固定
func (DocxRenderer) Render(r types.Resume) ([]byte, error) {
	doc := docx.New().WithDefaultTheme()
	for _, b := range layout(r) {
		writeBlock(doc, b)
	}
	// sectPr 必须是 body 的最后一个元素
	doc.WithA4Page()

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("写入DOCX失败: %w", err)
	}
	return buf.Bytes(), nil
}

func writeBlock(doc *docx.Docx, b block) {
	p := doc.AddParagraph()

	var size string
	var bold bool
	switch b.kind {
	case blockName:
		p.Justification("center")
		size, bold = nameSize, true
	case blockTitle:
		p.Justification("center")
		size, bold = titleSize, true
	case blockContact:
		p.Justification("center")
	case blockHeading:
		size, bold = headingSize, true
	case blockSubheading:
		size, bold = subheadingSize, true
	}

	runs := b.runs
	if b.kind == blockBullet {
		runs = append([]run{{text: "•\t"}}, runs...)
	}
	for _, rn := range runs {
		if rn.text == "" {
			continue
		}
		r := p.AddText(rn.text)
		// " - MSc" 这类片段的首尾空格需要保留
		for _, c := range r.Children {
			if t, ok := c.(*docx.Text); ok {
				t.XMLSpace = "preserve"
			}
		}
		if rn.bold || bold {
			r.Bold()
		}
		if rn.italic {
			r.Italic()
		}
		if size != "" {
			r.Size(size)
		}
	}
}
