package sanitizer

import (
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	emailPolicy *bluemonday.Policy
	initOnce    sync.Once
)

// richTextElements mirrors the usual rich-text allow-list of WYSIWYG editors.
var richTextElements = []string{
	"address", "article", "aside", "footer", "header", "main", "nav", "section",
	"h1", "h2", "h3", "h4", "h5", "h6", "hgroup",
	"blockquote", "dd", "div", "dl", "dt", "figcaption", "figure", "hr", "li", "ol", "p", "pre", "ul",
	"a", "abbr", "b", "bdi", "bdo", "br", "cite", "code", "data", "dfn", "em", "i", "kbd", "mark",
	"q", "rb", "rp", "rt", "rtc", "ruby", "s", "samp", "small", "span", "strong", "sub", "sup",
	"time", "u", "var", "wbr",
	"caption", "col", "colgroup", "table", "tbody", "td", "tfoot", "th", "thead", "tr",
}

var inlineStyleProperties = []string{
	"background-color", "border", "border-bottom", "border-collapse", "border-color", "border-left",
	"border-radius", "border-right", "border-style", "border-top", "border-width", "color",
	"display", "font-family", "font-size", "font-style", "font-weight", "height", "letter-spacing",
	"line-height", "margin", "margin-bottom", "margin-left", "margin-right", "margin-top",
	"max-width", "min-width", "padding", "padding-bottom", "padding-left", "padding-right",
	"padding-top", "text-align", "text-decoration", "text-transform", "vertical-align",
	"white-space", "width",
}

func initPolicies() {
	initOnce.Do(func() {
		emailPolicy = bluemonday.NewPolicy()
		emailPolicy.AllowStandardURLs()
		emailPolicy.AllowElements(richTextElements...)
		emailPolicy.AllowAttrs("href", "name", "target").OnElements("a")
		emailPolicy.AllowAttrs("src", "alt", "width", "height").OnElements("img")
		emailPolicy.AllowElements("img")

		// <style> blocks are common in email templates; bluemonday only keeps
		// them with AllowUnsafe. <script> stays undeclared and is always dropped.
		emailPolicy.AllowUnsafe(true)
		emailPolicy.AllowElements("style")

		emailPolicy.AllowStyles(inlineStyleProperties...).Globally()
		emailPolicy.AllowAttrs("style").Globally()
	})
}

// SanitizeEmailHTML cleans a campaign body for sending. Scripts, event
// handlers, javascript: URLs and undeclared elements are removed; the result
// is always usable, malformed markup degrades to escaped text.
func SanitizeEmailHTML(s string) string {
	initPolicies()
	return emailPolicy.Sanitize(s)
}
