// Package extract turns parsed listing, job detail and company about pages
// into raw field values. Every field is located by an ordered chain of
// strategies; the first strategy that finds a value wins.
package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/jobpost-crawler/internal/record"
)

// Match is a value found by a strategy. Method is the index of the strategy
// within its chain, or record.FallbackMethod for a chain fallback.
type Match struct {
	Value  string
	HTML   string
	Method int
}

// Strategy looks for one value in a document.
type Strategy interface {
	Find(doc *goquery.Selection) (Match, bool)
}

// Chain runs strategies in order and returns the first match. Fallback runs
// only when every strategy missed.
type Chain struct {
	Strategies []Strategy
	Fallback   Strategy
}

// Run returns the first match, or false when nothing matched.
func (c Chain) Run(doc *goquery.Selection) (Match, bool) {
	for i, s := range c.Strategies {
		if m, ok := s.Find(doc); ok {
			m.Method = i
			return m, true
		}
	}
	if c.Fallback != nil {
		if m, ok := c.Fallback.Find(doc); ok {
			m.Method = record.FallbackMethod
			return m, true
		}
	}
	return Match{}, false
}

// TextSelector matches the first element for a CSS selector and accepts its
// text when it is longer than MinLen characters. Block joins text nodes with
// newlines; otherwise they are concatenated.
type TextSelector struct {
	CSS    string
	MinLen int
	Block  bool
}

// Find implements Strategy.
func (s TextSelector) Find(doc *goquery.Selection) (Match, bool) {
	el := doc.Find(s.CSS).First()
	if el.Length() == 0 {
		return Match{}, false
	}
	text := inlineText(el)
	if s.Block {
		text = blockText(el)
	}
	if text == "" || runeLen(text) <= s.MinLen {
		return Match{}, false
	}
	outer, _ := goquery.OuterHtml(el)
	return Match{Value: text, HTML: outer}, true
}

// LargestBlock picks the div with the most text, accepted when longer than
// MinLen characters.
type LargestBlock struct {
	MinLen int
}

// Find implements Strategy.
func (s LargestBlock) Find(doc *goquery.Selection) (Match, bool) {
	var (
		best     string
		bestLen  int
		bestNode *goquery.Selection
	)
	doc.Find("div").Each(func(_ int, el *goquery.Selection) {
		text := blockText(el)
		if n := runeLen(text); n > bestLen {
			best, bestLen, bestNode = text, n, el
		}
	})
	if bestNode == nil || bestLen <= s.MinLen {
		return Match{}, false
	}
	outer, _ := goquery.OuterHtml(bestNode)
	return Match{Value: best, HTML: outer}, true
}

// textChain builds a chain of TextSelectors over css.
func textChain(css []string, minLen int, block bool) Chain {
	strategies := make([]Strategy, 0, len(css))
	for _, c := range css {
		strategies = append(strategies, TextSelector{CSS: c, MinLen: minLen, Block: block})
	}
	return Chain{Strategies: strategies}
}

// blockText joins the trimmed, non-empty text nodes under sel with newlines.
func blockText(sel *goquery.Selection) string {
	return strings.Join(textNodes(sel), "\n")
}

// inlineText concatenates the trimmed, non-empty text nodes under sel.
func inlineText(sel *goquery.Selection) string {
	return strings.Join(textNodes(sel), "")
}

func textNodes(sel *goquery.Selection) []string {
	var out []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				out = append(out, t)
			}
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "template":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
