package dossier

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// HTMLToText renders an HTML dossier as the line format Parse understands:
// h1..h6 become "#" headings, list items become "- " bullets, <strong>/<b>
// become "**" emphasis. Paragraphs nested in list items are emitted once.
func HTMLToText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var lines []string
	doc.Find("h1, h2, h3, h4, h5, h6, p, li").Each(func(_ int, s *goquery.Selection) {
		name := goquery.NodeName(s)
		if name == "p" && s.ParentsFiltered("li").Length() > 0 {
			return
		}
		text := strings.Join(strings.Fields(inlineText(s)), " ")
		if text == "" {
			return
		}
		switch name {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			lines = append(lines, "", strings.Repeat("#", int(name[1]-'0'))+" "+text)
		case "li":
			lines = append(lines, "- "+text)
		default:
			lines = append(lines, "", text)
		}
	})
	return strings.TrimLeft(strings.Join(lines, "\n"), "\n") + "\n", nil
}

// inlineText flattens s, keeping bold markers and skipping nested lists.
func inlineText(s *goquery.Selection) string {
	var b strings.Builder
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		n := c.Get(0)
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type != html.ElementNode:
		case n.Data == "ul" || n.Data == "ol":
		case n.Data == "strong" || n.Data == "b":
			if t := strings.TrimSpace(c.Text()); t != "" {
				b.WriteString("**" + t + "**")
			}
		case n.Data == "br":
			b.WriteByte(' ')
		default:
			b.WriteString(inlineText(c))
		}
	})
	return b.String()
}
