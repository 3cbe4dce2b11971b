package sections

import (
	"strconv"
	"strings"

	"secrag/internal/domain"
)

// PageStrategy splits on page-break markers. Blank pages are folded into
// the page that follows them; each marker stays at the head of its page.
type PageStrategy struct{}

func NewPageStrategy() *PageStrategy { return &PageStrategy{} }

func (*PageStrategy) Name() string     { return "pages" }
func (*PageStrategy) MinSections() int { return 2 }

func (*PageStrategy) Detect(text string) []domain.Section {
	var (
		heads []domain.Section
		start = 0
		page  = 0
	)
	emit := func(end int) {
		body := strings.ReplaceAll(text[start:end], pageBreakMarker, "")
		if strings.TrimSpace(body) == "" {
			return
		}
		page++
		heads = append(heads, domain.Section{
			Title: "Page " + strconv.Itoa(page),
			Type:  domain.SectionPage,
			Start: start,
		})
		start = end
	}
	for off := 0; ; {
		i := strings.Index(text[off:], pageBreakMarker)
		if i < 0 {
			break
		}
		brk := off + i
		if brk > start {
			emit(brk)
		}
		off = brk + len(pageBreakMarker)
	}
	emit(len(text))
	return build(text, heads)
}
