package format

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dgallion1/doctranslate/internal/document"
)

// HTMLHandler pages an HTML file by heading tags. Output is a minimal HTML
// document with one <section> per page and one <p> per line.
type HTMLHandler struct{}

func (h *HTMLHandler) Read(path string) ([]document.Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open html: %w", err)
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var sections []string
	var current strings.Builder
	flush := func() {
		if t := strings.TrimSpace(current.String()); t != "" {
			sections = append(sections, t)
		}
		current.Reset()
	}
	appendBlock := func(t string) {
		if t == "" {
			return
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(t)
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if headingLevel(n.Data) > 0 {
				flush()
				appendBlock(textContent(n))
				return
			}
			switch n.Data {
			case "script", "style", "nav", "footer", "header", "noscript", "template":
				return
			case "p", "li", "td", "th", "blockquote", "pre", "dt", "dd", "figcaption":
				appendBlock(textContent(n))
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	if body := findBody(doc); body != nil {
		walk(body)
	} else {
		walk(doc)
	}
	flush()

	return document.NewPages(sections...), nil
}

func (h *HTMLHandler) Write(path string, pages []string) error {
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	root := buildHTML(title, pages)
	return writeAtomic(path, func(w io.Writer) error {
		if _, err := io.WriteString(w, "<!DOCTYPE html>\n"); err != nil {
			return err
		}
		if err := html.Render(w, root); err != nil {
			return fmt.Errorf("render html: %w", err)
		}
		return nil
	}, nil)
}

func buildHTML(title string, pages []string) *html.Node {
	htmlNode := element(atom.Html)
	head := element(atom.Head)
	meta := element(atom.Meta)
	meta.Attr = []html.Attribute{{Key: "charset", Val: "utf-8"}}
	titleNode := element(atom.Title)
	titleNode.AppendChild(&html.Node{Type: html.TextNode, Data: title})
	head.AppendChild(meta)
	head.AppendChild(titleNode)

	body := element(atom.Body)
	for _, page := range pages {
		section := element(atom.Section)
		for _, line := range nonBlankLines(page) {
			p := element(atom.P)
			p.AppendChild(&html.Node{Type: html.TextNode, Data: line})
			section.AppendChild(p)
		}
		body.AppendChild(section)
	}

	htmlNode.AppendChild(head)
	htmlNode.AppendChild(body)
	return htmlNode
}

func element(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
}

func headingLevel(tag string) int {
	switch tag {
	case "h1":
		return 1
	case "h2":
		return 2
	case "h3":
		return 3
	case "h4":
		return 4
	case "h5":
		return 5
	case "h6":
		return 6
	}
	return 0
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
