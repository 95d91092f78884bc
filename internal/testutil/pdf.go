package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// MinimalPDF is a one-page document with no embedded images.
const MinimalPDF = `%PDF-1.4
1 0 obj
<<
/Type /Catalog
/Pages 2 0 R
>>
endobj

2 0 obj
<<
/Type /Pages
/Kids [3 0 R]
/Count 1
>>
endobj

3 0 obj
<<
/Type /Page
/Parent 2 0 R
/MediaBox [0 0 612 792]
>>
endobj

xref
0 4
0000000000 65535 f
0000000009 00000 n
0000000058 00000 n
0000000115 00000 n
trailer
<<
/Size 4
/Root 1 0 R
>>
startxref
186
%%EOF`

// WriteMinimalPDF writes MinimalPDF to dir/name and returns its path.
func WriteMinimalPDF(t *testing.T, dir, name string) string {
	t.Helper()
	return WriteFile(t, dir, name, []byte(MinimalPDF))
}

// WriteScenePDF renders each scene to PNG and imports them into a PDF with
// one scene per page. The test is skipped when pdfcpu cannot build the file.
func WriteScenePDF(t *testing.T, dir, name string, scenes ...Scene) string {
	t.Helper()

	out, err := BuildScenePDF(dir, name, scenes...)
	if err != nil {
		t.Skipf("pdfcpu could not build test PDF: %v", err)
	}
	return out
}

// BuildScenePDF is WriteScenePDF for callers without a *testing.T. The
// rendered page images are kept under dir/pdf-src.
func BuildScenePDF(dir, name string, scenes ...Scene) (string, error) {
	imgDir := filepath.Join(dir, "pdf-src")
	files := make([]string, 0, len(scenes))
	for _, s := range scenes {
		path, err := s.WriteFile(imgDir)
		if err != nil {
			return "", err
		}
		files = append(files, path)
	}

	out := filepath.Join(dir, name)
	if err := api.ImportImagesFile(files, out, nil, nil); err != nil {
		_ = os.Remove(out)
		return "", err
	}
	return out, nil
}
