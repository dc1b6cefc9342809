package textextract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractHTML(t *testing.T) {
	page := []byte(`<html><head><title>Docs</title>
<script>var tracking = true;</script>
<style>.hidden { display: none }</style></head>
<body><nav>Home | Pricing</nav>
<h1>Charges API</h1>
<p>Create a charge with <code>POST /v1/charges</code> &amp; an API key.</p>
<footer>Copyright</footer></body></html>`)

	got, err := Extract(page, "text/html; charset=utf-8")
	require.NoError(t, err)

	assert.Equal(t, "html", got.Format)
	assert.Contains(t, got.Content, "Charges API")
	assert.Contains(t, got.Content, "POST /v1/charges & an API key")
	assert.NotContains(t, got.Content, "tracking")
	assert.NotContains(t, got.Content, "display: none")
	assert.NotContains(t, got.Content, "Home | Pricing")
	assert.NotContains(t, got.Content, "Copyright")
	assert.NotContains(t, got.Content, "<")
}

func TestExtractMarkdownAndText(t *testing.T) {
	md, err := Extract([]byte("# Title\nBody."), "text/markdown")
	require.NoError(t, err)
	assert.Equal(t, "markdown", md.Format)
	assert.Equal(t, "# Title\nBody.", md.Content)

	txt, err := Extract([]byte("plain body"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "text", txt.Format)
	assert.Equal(t, "plain body", txt.Content)
}

func TestExtractSniffsMislabeledHTML(t *testing.T) {
	got, err := Extract([]byte("<html><body><p>hidden docs</p></body></html>"), "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, "html", got.Format)
	assert.Contains(t, got.Content, "hidden docs")
}

func TestExtractUnknownContentTypeFallsBackToText(t *testing.T) {
	got, err := Extract([]byte("just bytes"), "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, "text", got.Format)
	assert.Equal(t, "just bytes", got.Content)
}

func TestExtractInvalidPDF(t *testing.T) {
	_, err := Extract([]byte("not a pdf"), "application/pdf")
	assert.Error(t, err)
}

func TestDecodeEntities(t *testing.T) {
	assert.Equal(t, `a < b > "c" & 'd'`, decodeEntities("a &lt; b &gt; &quot;c&quot; &amp; &#39;d&#39;"))
}
