package document

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-builder/internal/types"
)

func sampleResume() types.Resume {
	return types.Resume{
		Name:     "Jane Smith",
		Title:    "Backend Engineer",
		Email:    "jane@example.com",
		Location: "Berlin",
		Summary:  "Builds reliable services & APIs.",
		Education: []types.Education{
			{Institution: "TU Berlin", Degree: "MSc Computer Science", YearRange: "2015-2017", Grade: "1.3"},
		},
		Skills:   []string{"go", "python"},
		Projects: []types.Project{{Name: "resume-builder", Description: "Interview driven resume generator"}},
		Experience: []types.Experience{
			{Title: "Engineer", Company: "Acme", Duration: "2018-2023", Description: "Payments platform"},
		},
		Certifications: []types.Certification{{Title: "CKA", Issuer: "CNCF", Date: "2022"}},
		Languages:      []string{"English", "German"},
	}
}

func readZipEntry(t *testing.T, data []byte, name string) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			require.NoError(t, err)
			defer rc.Close()
			b, err := io.ReadAll(rc)
			require.NoError(t, err)
			return string(b)
		}
	}
	t.Fatalf("zip entry %s not found", name)
	return ""
}

func TestMarkdownLayout(t *testing.T) {
	md := Markdown(sampleResume())

	assert.Contains(t, md, "# Jane Smith\n")
	assert.Contains(t, md, "## Backend Engineer\n")
	assert.Contains(t, md, "jane@example.com | Berlin\n")
	assert.Contains(t, md, "### Summary\n")
	assert.Contains(t, md, "**TU Berlin** - MSc Computer Science")
	assert.Contains(t, md, "_Year: 2015-2017 | Grade: 1.3_")
	assert.Contains(t, md, "- go\n- python\n")
	assert.Contains(t, md, "#### Engineer at Acme (2018-2023)")
	assert.Contains(t, md, "- CKA - CNCF (2022)")
	assert.Contains(t, md, "### Languages\n- English\n- German\n")

	// 章节顺序固定
	assert.Less(t, bytes.Index([]byte(md), []byte("### Education")), bytes.Index([]byte(md), []byte("### Skills")))
	assert.Less(t, bytes.Index([]byte(md), []byte("### Projects")), bytes.Index([]byte(md), []byte("### Experience")))
}

func TestMarkdownOmitsEmptySections(t *testing.T) {
	md := Markdown(types.Resume{Name: "Jane Smith", Title: "Engineer"})
	assert.Equal(t, "# Jane Smith\n## Engineer\n", md)
	assert.Empty(t, Markdown(types.Resume{}))
}

func TestDocxIsValidPackage(t *testing.T) {
	data, err := DocxRenderer{}.Render(sampleResume())
	require.NoError(t, err)

	body := readZipEntry(t, data, "word/document.xml")
	assert.Contains(t, body, `w:val="center"`)
	assert.Contains(t, body, `w:val="48"`)
	assert.Contains(t, body, "Jane Smith")
	assert.Contains(t, body, "Education")
	assert.Contains(t, body, " - MSc Computer Science")
	assert.Contains(t, body, "Builds reliable services &amp; APIs.")
	assert.NotContains(t, body, "services & APIs")
	assert.Contains(t, body, `w:w="11906"`)

	assert.Contains(t, readZipEntry(t, data, "[Content_Types].xml"), "wordprocessingml.document.main+xml")
	assert.Contains(t, readZipEntry(t, data, "_rels/.rels"), "word/document.xml")
}

// 条目顺序不固定，只比较每个条目的内容
func TestDocxIsDeterministic(t *testing.T) {
	first, err := DocxRenderer{}.Render(sampleResume())
	require.NoError(t, err)
	second, err := DocxRenderer{}.Render(sampleResume())
	require.NoError(t, err)
	assert.Equal(t, zipEntries(t, first), zipEntries(t, second))
}

func zipEntries(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		out[f.Name] = readZipEntry(t, data, f.Name)
	}
	return out
}

func TestGeneratorStoresAndOpens(t *testing.T) {
	ctx := context.Background()
	blobs := NewMemoryBlobStore()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gen := NewGenerator(DocxRenderer{}, blobs, WithClock(func() time.Time { return created }))

	a, err := gen.Generate(ctx, "abc", sampleResume())
	require.NoError(t, err)
	assert.Equal(t, "resumes/abc/resume_abc.docx", a.Key)
	assert.Equal(t, "resume_abc.docx", a.FileName)
	assert.Equal(t, docxContentType, a.ContentType)
	assert.Equal(t, created, a.CreatedAt)
	assert.Len(t, a.SHA256, 64)
	assert.Equal(t, 1, blobs.Len())

	data, err := gen.Open(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, a.Size, int64(len(data)))
}

func TestGeneratorOpenDetectsMismatch(t *testing.T) {
	ctx := context.Background()
	blobs := NewMemoryBlobStore()
	gen := NewGenerator(MarkdownRenderer{}, blobs, WithKeyPrefix("previews"))

	a, err := gen.Generate(ctx, "abc", sampleResume())
	require.NoError(t, err)
	assert.Equal(t, "previews/abc/resume_abc.md", a.Key)

	require.NoError(t, blobs.PutObject(ctx, a.Key, []byte("tampered"), "text/plain"))
	_, err = gen.Open(ctx, a)
	require.Error(t, err)

	_, err = gen.Open(ctx, types.Artifact{Key: "missing"})
	require.ErrorIs(t, err, ErrBlobNotFound)
}

type failingBlobs struct{}

func (failingBlobs) PutObject(context.Context, string, []byte, string) error {
	return errors.New("bucket unavailable")
}

func (failingBlobs) GetObject(context.Context, string) ([]byte, error) {
	return nil, errors.New("bucket unavailable")
}

func TestGeneratorPropagatesStoreFailure(t *testing.T) {
	gen := NewGenerator(DocxRenderer{}, failingBlobs{})
	_, err := gen.Generate(context.Background(), "abc", sampleResume())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unavailable")
}
