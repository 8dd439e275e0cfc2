package sanitizer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vibast-solutions/ms-go-campaigns/app/sanitizer"
)

func TestSanitizeEmailHTMLStrips(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		forbidden []string
		kept      []string
	}{
		{
			name:      "script injection",
			input:     `<p>Hello</p><script>alert('xss')</script>`,
			forbidden: []string{"<script", "alert("},
			kept:      []string{"<p>Hello</p>"},
		},
		{
			name:      "event handlers on images",
			input:     `<img src="https://cdn.example.com/a.png" alt="logo" onerror="alert(1)">`,
			forbidden: []string{"onerror", "alert"},
			kept:      []string{`src="https://cdn.example.com/a.png"`, `alt="logo"`},
		},
		{
			name:      "javascript URLs",
			input:     `<a href="javascript:alert('xss')">click</a>`,
			forbidden: []string{"javascript:"},
			kept:      []string{"click"},
		},
		{
			name:      "iframe and object",
			input:     `<iframe src="https://evil.com"></iframe><object data="x"></object>text`,
			forbidden: []string{"<iframe", "<object"},
			kept:      []string{"text"},
		},
		{
			name:      "form controls",
			input:     `<form action="https://evil.com"><input name="pw"></form>after`,
			forbidden: []string{"<form", "<input"},
			kept:      []string{"after"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := sanitizer.SanitizeEmailHTML(tc.input)
			for _, f := range tc.forbidden {
				assert.NotContains(t, got, f)
			}
			for _, k := range tc.kept {
				assert.Contains(t, got, k)
			}
		})
	}
}

func TestSanitizeEmailHTMLKeepsEmailMarkup(t *testing.T) {
	t.Parallel()

	input := `<style>.title{color:red}</style>` +
		`<h1 class="title">Launch</h1>` +
		`<table><tr><td style="color: #333333">Cell</td></tr></table>` +
		`<img src="https://cdn.example.com/hero.jpg" width="600" height="200">` +
		`<a href="https://example.com" target="_blank">Read more</a>`

	got := sanitizer.SanitizeEmailHTML(input)

	assert.Contains(t, got, "<style>")
	assert.Contains(t, got, ".title{color:red}")
	assert.Contains(t, got, "<h1>Launch</h1>")
	assert.Contains(t, got, "<td style=")
	assert.Contains(t, got, `width="600"`)
	assert.Contains(t, got, `height="200"`)
	assert.Contains(t, got, `href="https://example.com"`)
}

func TestSanitizeEmailHTMLNeverFails(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", sanitizer.SanitizeEmailHTML(""))
	assert.Equal(t, "plain text", sanitizer.SanitizeEmailHTML("plain text"))
	assert.NotPanics(t, func() {
		_ = sanitizer.SanitizeEmailHTML(`<div><p>unclosed <b>tags <<>>`)
	})
}
