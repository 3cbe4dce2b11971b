// Package htmltext converts EDGAR HTML filings into the plain-text marker
// dialect the section detector and chunker consume: one block per line,
// tables wrapped in [TABLE_START]/[TABLE_END] with "cell | cell" rows and
// page breaks rendered as [PAGE BREAK].
package htmltext

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"secrag/internal/chunker"
)

var (
	spaceRe     = regexp.MustCompile(`[\s\x{00a0}]+`)
	breakStyles = []string{"page-break-before:always", "page-break-after:always", "break-before:page", "break-after:page"}
)

var blockTags = map[string]bool{
	"address": true, "article": true, "blockquote": true, "body": true, "center": true,
	"dd": true, "div": true, "dl": true, "dt": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "li": true, "main": true, "ol": true, "p": true, "pre": true,
	"section": true, "ul": true,
}

var skipTags = map[string]bool{
	"#comment": true, "head": true, "script": true, "style": true, "title": true, "noscript": true,
}

// Convert reads an HTML document and renders it as marker-dialect text.
func Convert(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	w := &writer{}
	w.walk(doc.Selection)
	w.flush()
	return strings.Join(w.lines, "\n"), nil
}

// ConvertString is Convert over a string.
func ConvertString(html string) (string, error) {
	return Convert(strings.NewReader(html))
}

type writer struct {
	lines []string
	cur   strings.Builder
}

func (w *writer) inline(s string) {
	w.cur.WriteString(spaceRe.ReplaceAllString(s, " "))
}

func (w *writer) flush() {
	if line := strings.TrimSpace(w.cur.String()); line != "" {
		w.lines = append(w.lines, line)
	}
	w.cur.Reset()
}

func (w *writer) pageBreak() {
	w.flush()
	if n := len(w.lines); n > 0 && w.lines[n-1] == chunker.PageBreak {
		return
	}
	w.lines = append(w.lines, chunker.PageBreak)
}

func (w *writer) walk(sel *goquery.Selection) {
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		name := goquery.NodeName(c)
		switch {
		case name == "#text":
			w.inline(c.Text())
		case skipTags[name]:
		case name == "br":
			w.flush()
		case name == "hr":
			if breaksBefore(c) || breaksAfter(c) {
				w.pageBreak()
			} else {
				w.flush()
			}
		case name == "table":
			if breaksBefore(c) {
				w.pageBreak()
			}
			w.flush()
			w.table(c)
			if breaksAfter(c) {
				w.pageBreak()
			}
		default:
			block := blockTags[name]
			if breaksBefore(c) {
				w.pageBreak()
			}
			if block {
				w.flush()
			}
			w.walk(c)
			if block {
				w.flush()
			}
			if breaksAfter(c) {
				w.pageBreak()
			}
		}
	})
}

// table renders non-empty rows only; layout tables without text vanish.
func (w *writer) table(t *goquery.Selection) {
	var rows []string
	t.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.ChildrenFiltered("td, th").Each(func(_ int, td *goquery.Selection) {
			if cell := strings.TrimSpace(spaceRe.ReplaceAllString(td.Text(), " ")); cell != "" {
				cells = append(cells, cell)
			}
		})
		if len(cells) > 0 {
			rows = append(rows, strings.Join(cells, " | "))
		}
	})
	if len(rows) == 0 {
		return
	}
	w.lines = append(w.lines, chunker.TableStart)
	w.lines = append(w.lines, rows...)
	w.lines = append(w.lines, chunker.TableEnd)
}

func style(sel *goquery.Selection) string {
	s, _ := sel.Attr("style")
	return strings.ToLower(strings.ReplaceAll(s, " ", ""))
}

func breaksBefore(sel *goquery.Selection) bool {
	s := style(sel)
	return strings.Contains(s, breakStyles[0]) || strings.Contains(s, breakStyles[2])
}

func breaksAfter(sel *goquery.Selection) bool {
	s := style(sel)
	return strings.Contains(s, breakStyles[1]) || strings.Contains(s, breakStyles[3])
}
