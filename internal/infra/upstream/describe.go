package upstream

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/bryanwahyu/analytics-bridge/internal/domain/analysis"
)

const snippetLimit = 300

// describeBody turns an error body into one readable line. Proxy error
// pages are reduced to their title and heading, JSON failures to their
// message.
func describeBody(contentType, body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	if strings.Contains(strings.ToLower(contentType), "html") || strings.HasPrefix(body, "<") {
		if s := describeHTML(body); s != "" {
			return truncate(s)
		}
	}
	if env, err := analysis.ParseEnvelope([]byte(body)); err == nil {
		if f := env.Failure(); f != nil && f.Message != "" {
			return truncate(f.Error())
		}
	}
	return truncate(collapse(body))
}

func describeHTML(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	var parts []string
	for _, sel := range []string{"title", "h1"} {
		text := collapse(doc.Find(sel).First().Text())
		if text != "" && !contains(parts, text) {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return collapse(doc.Find("body").Text())
	}
	return strings.Join(parts, " - ")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func collapse(s string) string { return strings.Join(strings.Fields(s), " ") }

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= snippetLimit {
		return s
	}
	return string(r[:snippetLimit]) + "..."
}
