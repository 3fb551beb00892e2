package metadata

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Meta is the preview metadata extracted from a page.
type Meta struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// Extract parses an HTML document and pulls preview metadata, with Open
// Graph and Twitter card fallbacks. Wikipedia pages get extra fallbacks for
// description and image since they carry neither card reliably.
func Extract(pageURL string, r io.Reader) (Meta, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Meta{}, err
	}

	m := Meta{
		Title: firstNonEmpty(
			strings.TrimSpace(doc.Find("title").First().Text()),
			metaContent(doc, `meta[property="og:title"]`),
			metaContent(doc, `meta[name="twitter:title"]`),
		),
		Description: firstNonEmpty(
			metaContent(doc, `meta[name="description"]`),
			metaContent(doc, `meta[property="og:description"]`),
			metaContent(doc, `meta[name="twitter:description"]`),
		),
		Image: firstNonEmpty(
			metaContent(doc, `meta[property="og:image"]`),
			metaContent(doc, `meta[name="twitter:image"]`),
			metaContent(doc, `meta[name="twitter:image:src"]`),
		),
	}

	if strings.Contains(pageURL, "wikipedia.org") {
		applyWikipediaFallbacks(doc, &m)
	}

	return m, nil
}

func applyWikipediaFallbacks(doc *goquery.Document, m *Meta) {
	if m.Description == "" {
		m.Description = strings.TrimSpace(doc.Find("#mw-content-text p:not(.mw-empty-elt)").First().Text())
	}

	if m.Image == "" {
		if src, ok := doc.Find(".infobox img").First().Attr("src"); ok {
			m.Image = normalizeImageURL(src)
		}
	}

	if m.Image == "" {
		if src, ok := doc.Find("#mw-content-text img[src]:not(.mw-file-element)").First().Attr("src"); ok {
			m.Image = normalizeImageURL(src)
		}
	}
}

// normalizeImageURL upgrades protocol-relative image sources to https.
func normalizeImageURL(src string) string {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}
	if strings.HasPrefix(src, "http") {
		return src
	}
	return "https:" + src
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
