package aippt

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	defaultFontSize   = 16.0
	defaultFontFamily = "Microsoft Yahei"
)

var (
	fontSizeRe       = regexp.MustCompile(`(?i)font-size:\s*(\d+(?:\.\d+)?)\s*px`)
	fontFamilyRe     = regexp.MustCompile(`(?i)font-family:\s*['"]?([^'";>]+)['"]?\s*(?:;|>|$)`)
	fontSizeTokenRe  = regexp.MustCompile(`font-size:(.+?)px`)
	leadingNumeralRe = regexp.MustCompile(`^\s*(\d+)`)
)

// fontInfo returns the first inline font size and family found in markup.
func fontInfo(content string) (size float64, family string) {
	size, family = defaultFontSize, defaultFontFamily
	if m := fontSizeRe.FindStringSubmatch(content); m != nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(m[1]), 64); err == nil {
			size = v
		}
	}
	if m := fontFamilyRe.FindStringSubmatch(content); m != nil {
		if v := strings.TrimSpace(m[1]); v != "" {
			family = v
		}
	}
	return size, family
}

// formatFontSize formats a font size the way it is written into inline styles.
func formatFontSize(size float64) string {
	return strconv.FormatFloat(size, 'f', -1, 64)
}

// patchText replaces the first text run of content with text, deletes every other run
// and rewrites every font-size declaration to size.
// When the first run is two characters long and text is one, text is zero padded if pad is set.
func patchText(content, text string, size float64, pad bool) (string, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(content), body)
	if err != nil {
		return "", fmt.Errorf("failed to parse text content: %w", err)
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}

	var runs []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			runs = append(runs, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(body)

	if len(runs) > 0 {
		first := runs[0]
		if pad && len([]rune(first.Data)) == 2 && len([]rune(text)) == 1 {
			first.Data = "0" + text
		} else {
			first.Data = text
		}
		for _, n := range runs[1:] {
			n.Parent.RemoveChild(n)
		}
	} else {
		parent := body
		if p := firstElement(body, atom.P); p != nil {
			parent = p
		}
		parent.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}

	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("failed to render text content: %w", err)
		}
	}
	if !strings.Contains(buf.String(), "font-size") {
		if p := firstElement(body, atom.P); p != nil {
			setStyle(p, "font-size", "16px")
			buf.Reset()
			for c := body.FirstChild; c != nil; c = c.NextSibling {
				if err := html.Render(&buf, c); err != nil {
					return "", fmt.Errorf("failed to render text content: %w", err)
				}
			}
		}
	}
	return fontSizeTokenRe.ReplaceAllString(buf.String(), "font-size: "+formatFontSize(size)+"px"), nil
}

func firstElement(n *html.Node, a atom.Atom) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
		if found := firstElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func setStyle(n *html.Node, prop, value string) {
	decl := prop + ": " + value + ";"
	for i, a := range n.Attr {
		if a.Key != "style" {
			continue
		}
		v := strings.TrimSpace(a.Val)
		if v != "" && !strings.HasSuffix(v, ";") {
			v += ";"
		}
		if v != "" {
			v += " "
		}
		n.Attr[i].Val = v + decl
		return
	}
	n.Attr = append(n.Attr, html.Attribute{Key: "style", Val: decl})
}

// plainText returns the text of markup without tags.
func plainText(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return content
	}
	return strings.TrimSpace(doc.Text())
}

// leadingNumeral parses the integer a placeholder's text starts with.
func leadingNumeral(content string) (int, bool) {
	m := leadingNumeralRe.FindStringSubmatch(plainText(content))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
