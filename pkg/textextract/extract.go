// Package textextract converts fetched documentation pages (HTML, PDF,
// markdown, plain text) into plain text suitable for chunking.
package textextract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

type ExtractedText struct {
	Content string
	Format  string // html, pdf, markdown, text
	Pages   int
}

// Extract dispatches on the response content type (falling back to URL
// suffix sniffing done by the caller).
func Extract(data []byte, contentType string) (*ExtractedText, error) {
	switch {
	case strings.Contains(contentType, "application/pdf"):
		return extractPDF(data)
	case strings.Contains(contentType, "text/html"):
		return extractHTML(data)
	case strings.Contains(contentType, "text/markdown"):
		return &ExtractedText{Content: string(data), Format: "markdown", Pages: 1}, nil
	case strings.HasPrefix(contentType, "text/"):
		return &ExtractedText{Content: string(data), Format: "text", Pages: 1}, nil
	default:
		// Most documentation servers mislabel; try HTML first, fall
		// back to raw text.
		if bytes.Contains(data, []byte("<html")) || bytes.Contains(data, []byte("<body")) {
			return extractHTML(data)
		}
		return &ExtractedText{Content: string(data), Format: "text", Pages: 1}, nil
	}
}

func extractPDF(data []byte) (*ExtractedText, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	var buf strings.Builder
	numPages := reader.NumPage()

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}

	return &ExtractedText{
		Content: buf.String(),
		Format:  "pdf",
		Pages:   numPages,
	}, nil
}

var (
	htmlTag    = regexp.MustCompile(`(?s)<[^>]+>`)
	multiSpace = regexp.MustCompile(`[ \t]+`)
	multiBlank = regexp.MustCompile(`\n{3,}`)
)

func extractHTML(data []byte) (*ExtractedText, error) {
	text := string(data)
	text = stripBlocks(text)
	text = htmlTag.ReplaceAllString(text, " ")
	text = decodeEntities(text)
	text = multiSpace.ReplaceAllString(text, " ")
	text = multiBlank.ReplaceAllString(text, "\n\n")
	return &ExtractedText{
		Content: strings.TrimSpace(text),
		Format:  "html",
		Pages:   1,
	}, nil
}

// stripBlocks removes whole elements whose text content is never
// documentation (scripts, styles, chrome).
func stripBlocks(text string) string {
	for _, tag := range []string{"script", "style", "noscript", "nav", "footer", "header"} {
		re := regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
		text = re.ReplaceAllString(text, " ")
	}
	return text
}

var entities = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&nbsp;", " ",
)

func decodeEntities(text string) string {
	return entities.Replace(text)
}
