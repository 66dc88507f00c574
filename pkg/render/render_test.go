package render_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/apifunc/go-apifunc/pkg/render"
)

func TestJSONToHTML(t *testing.T) {
	html, err := render.JSONToHTML(map[string]any{
		"title":  "Sample Report",
		"author": "APIFunc",
	})
	require.NoError(t, err)
	require.Contains(t, html, "<h1>Report</h1>")
	require.Contains(t, html, "<td>title</td>")
	require.Contains(t, html, "<td>Sample Report</td>")
	require.Contains(t, html, "<td>author</td>")

	// Sorted keys keep output deterministic.
	require.Less(t, strings.Index(html, "author"), strings.Index(html, "title"))
}

func TestJSONToHTMLEscapes(t *testing.T) {
	html, err := render.JSONToHTML(map[string]any{"x": "<script>alert(1)</script>"})
	require.NoError(t, err)
	require.NotContains(t, html, "<script>")
	require.Contains(t, html, "&lt;script&gt;")
}

func TestHTMLToPDF(t *testing.T) {
	pdf, err := render.HTMLToPDF("<html><body><h1>Report</h1><p>hello (world)</p></body></html>")
	require.NoError(t, err)

	s := string(pdf)
	require.True(t, strings.HasPrefix(s, "%PDF-1.4"))
	require.True(t, strings.HasSuffix(s, "%%EOF\n"))
	require.Contains(t, s, "(Report) Tj")
	require.Contains(t, s, `(hello \(world\)) Tj`)
	require.Contains(t, s, "startxref")
}

func TestHTMLToPDFEmptyInput(t *testing.T) {
	pdf, err := render.HTMLToPDF("")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(pdf), "%PDF-1.4"))
}
