// pkg/render/pdf.go
package render

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

var (
	tagRe   = regexp.MustCompile(`<[^>]+>`)
	blankRe = regexp.MustCompile(`\n{2,}`)
)

// HTMLToPDF renders HTML content into a minimal single-page PDF. Markup is
// reduced to its text lines; layout fidelity is not a goal, a valid
// byte-exact-parseable document is.
func HTMLToPDF(htmlContent string) ([]byte, error) {
	lines := textLines(htmlContent)
	if len(lines) == 0 {
		lines = []string{""}
	}

	var content bytes.Buffer
	content.WriteString("BT\n/F1 11 Tf\n14 TL\n72 756 Td\n")
	for _, line := range lines {
		fmt.Fprintf(&content, "(%s) Tj\nT*\n", escapePDF(line))
	}
	content.WriteString("ET\n")

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", content.Len(), content.String()),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var out bytes.Buffer
	out.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, body := range objects {
		offsets[i] = out.Len()
		fmt.Fprintf(&out, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xref := out.Len()
	fmt.Fprintf(&out, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&out, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&out, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return out.Bytes(), nil
}

// textLines strips tags and collapses whitespace into display lines.
func textLines(htmlContent string) []string {
	text := tagRe.ReplaceAllString(htmlContent, "\n")
	text = strings.ReplaceAll(text, "\r", "")
	text = blankRe.ReplaceAllString(text, "\n")

	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func escapePDF(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
