package preview

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Harden strips the parts of a generated html fragment that would reach outside the
// preview: external form actions, external scripts and external stylesheets. The
// fragment is returned untouched when nothing had to be removed. The second return
// value describes what was removed.
func Harden(fragment string) (string, []string, error) {
	if strings.TrimSpace(fragment) == "" {
		return fragment, nil, nil
	}

	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return "", nil, fmt.Errorf("error parsing html fragment: %w", err)
	}

	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, n := range nodes {
		root.AppendChild(n)
	}

	doc := goquery.NewDocumentFromNode(root)
	var removed []string

	doc.Find("form[action]").Each(func(_ int, s *goquery.Selection) {
		if action, _ := s.Attr("action"); isExternalURL(action) {
			s.RemoveAttr("action")
			removed = append(removed, "form action "+action)
		}
	})

	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		if src, _ := s.Attr("src"); isExternalURL(src) {
			s.Remove()
			removed = append(removed, "script "+src)
		}
	})

	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		rel, _ := s.Attr("rel")
		if isExternalURL(href) && !strings.EqualFold(strings.TrimSpace(rel), "icon") {
			s.Remove()
			removed = append(removed, "link "+href)
		}
	})

	if len(removed) == 0 {
		return fragment, nil, nil
	}

	var b bytes.Buffer
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&b, c); err != nil {
			return "", nil, fmt.Errorf("error rendering hardened html: %w", err)
		}
	}

	return b.String(), removed, nil
}

func isExternalURL(u string) bool {
	u = strings.ToLower(strings.TrimSpace(u))
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "//")
}
