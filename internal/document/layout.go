package document

import (
	"strings"

	"resume-builder/internal/types"
)

type blockKind int

const (
	blockName blockKind = iota
	blockTitle
	blockContact
	blockHeading
	blockSubheading
	blockParagraph
	blockBullet
)

type run struct {
	text   string
	bold   bool
	italic bool
}

// block 与输出格式无关的版面元素，DOCX 和 Markdown 共用同一份版面
type block struct {
	kind blockKind
	runs []run
}

func textBlock(kind blockKind, text string) block {
	return block{kind: kind, runs: []run{{text: text}}}
}

// layout 按固定章节顺序排版简历，空字段和空章节不输出
func layout(r types.Resume) []block {
	var blocks []block

	if r.Name != "" {
		blocks = append(blocks, textBlock(blockName, r.Name))
	}
	if r.Title != "" {
		blocks = append(blocks, textBlock(blockTitle, r.Title))
	}
	if contact := joinNonEmpty(" | ", r.Phone, r.Email, r.Location); contact != "" {
		blocks = append(blocks, textBlock(blockContact, contact))
	}

	if r.Summary != "" {
		blocks = append(blocks, textBlock(blockHeading, "Summary"), textBlock(blockParagraph, r.Summary))
	}

	if len(r.Education) > 0 {
		blocks = append(blocks, textBlock(blockHeading, "Education"))
		for _, edu := range r.Education {
			runs := []run{{text: edu.Institution, bold: true}}
			if edu.Degree != "" {
				runs = append(runs, run{text: " - " + edu.Degree})
			}
			blocks = append(blocks, block{kind: blockParagraph, runs: runs})

			var details []string
			if edu.YearRange != "" {
				details = append(details, "Year: "+edu.YearRange)
			}
			if edu.Grade != "" {
				details = append(details, "Grade: "+edu.Grade)
			}
			if edu.Location != "" {
				details = append(details, "Location: "+edu.Location)
			}
			if len(details) > 0 {
				blocks = append(blocks, block{kind: blockParagraph, runs: []run{{text: strings.Join(details, " | "), italic: true}}})
			}
		}
	}

	if len(r.Skills) > 0 {
		blocks = append(blocks, textBlock(blockHeading, "Skills"))
		for _, s := range r.Skills {
			blocks = append(blocks, textBlock(blockBullet, s))
		}
	}

	if len(r.Projects) > 0 {
		blocks = append(blocks, textBlock(blockHeading, "Projects"))
		for _, p := range r.Projects {
			if p.Name != "" {
				blocks = append(blocks, textBlock(blockSubheading, p.Name))
			}
			if p.Description != "" {
				blocks = append(blocks, textBlock(blockParagraph, p.Description))
			}
		}
	}

	if len(r.Experience) > 0 {
		blocks = append(blocks, textBlock(blockHeading, "Experience"))
		for _, e := range r.Experience {
			var parts []string
			if e.Title != "" {
				parts = append(parts, e.Title)
			}
			if e.Company != "" {
				parts = append(parts, "at "+e.Company)
			}
			if e.Duration != "" {
				parts = append(parts, "("+e.Duration+")")
			}
			if len(parts) > 0 {
				blocks = append(blocks, textBlock(blockSubheading, strings.Join(parts, " ")))
			}
			if e.Description != "" {
				blocks = append(blocks, textBlock(blockParagraph, e.Description))
			}
		}
	}

	if len(r.Certifications) > 0 {
		blocks = append(blocks, textBlock(blockHeading, "Certifications"))
		for _, c := range r.Certifications {
			var parts []string
			if c.Title != "" {
				parts = append(parts, c.Title)
			}
			if c.Issuer != "" {
				parts = append(parts, "- "+c.Issuer)
			}
			if c.Date != "" {
				parts = append(parts, "("+c.Date+")")
			}
			if len(parts) > 0 {
				blocks = append(blocks, textBlock(blockBullet, strings.Join(parts, " ")))
			}
		}
	}

	if len(r.Languages) > 0 {
		blocks = append(blocks, textBlock(blockHeading, "Languages"))
		for _, l := range r.Languages {
			blocks = append(blocks, textBlock(blockBullet, l))
		}
	}

	return blocks
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
