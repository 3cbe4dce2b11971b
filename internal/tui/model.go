package tui

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"secrag/internal/domain"
)

// Searcher is the TUI-facing subset of the retrieval engine.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, f domain.Filters) ([]domain.SearchResult, error)
}

type resultsMsg struct {
	query   string
	results []domain.SearchResult
	err     error
}

// Model is the Bubble Tea model for the filing browser.
type Model struct {
	ctx       context.Context
	search    Searcher
	topK      int
	input     textinput.Model
	viewport  viewport.Model
	results   []domain.SearchResult
	summary   string
	status    string
	cursor    int
	ready     bool
	searching bool
	lastQuery string
}

// New creates a new TUI model instance. summary is shown under the header.
func New(ctx context.Context, s Searcher, topK int, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "query, e.g. supply chain risk ticker:AAPL year:2024 item:risk"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:      ctx,
		search:   s,
		topK:     topK,
		input:    ti,
		viewport: vp,
		summary:  summary,
		status:   "Type a query and press Enter.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) runSearch(raw string) tea.Cmd {
	query, f := ParseQuery(raw)
	return func() tea.Msg {
		res, err := m.search.Search(m.ctx, query, m.topK, f)
		return resultsMsg{query: query, results: res, err: err}
	}
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, summary, status, spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case resultsMsg:
		m.searching = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.results = nil
		} else {
			m.status = fmt.Sprintf("%d results for %q", len(msg.results), msg.query)
			m.results = msg.results
			m.cursor = 0
			m.lastQuery = msg.query
		}
		m.viewport.SetContent(m.renderCurrentResult())
		m.viewport.GotoTop()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.searching {
				m.searching = true
				m.status = "Searching..."
				return m, m.runSearch(q)
			}
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("SEC Filing Search")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrentResult() string {
	if len(m.results) == 0 {
		return "No results yet."
	}
	r := m.results[m.cursor]
	title := fmt.Sprintf("Result %d/%d  score=%.3f", m.cursor+1, len(m.results), r.Score)
	meta := metaStyle.Render(fmt.Sprintf("%s %s filed %s  FY%d Q%d  %s  [%s]",
		r.Ticker, r.FormType, r.FilingDate, r.Fiscal.FiscalYear, r.Fiscal.FiscalQuarter, r.ItemLabel, r.ChunkType))
	body := r.Text
	if r.ChunkType != string(domain.ChunkTable) {
		body = highlightBestSentence(r.Text, m.lastQuery)
	}
	return title + "\n" + meta + "\n\n" + body
}

// ParseQuery splits filter terms of the form key:value out of raw input.
// Recognised keys are ticker, form, year, item and type; item values may
// use underscores for spaces. Everything else is the semantic query.
func ParseQuery(raw string) (string, domain.Filters) {
	var (
		f     domain.Filters
		words []string
	)
	for _, w := range strings.Fields(raw) {
		key, val, ok := strings.Cut(w, ":")
		if !ok || val == "" {
			words = append(words, w)
			continue
		}
		switch strings.ToLower(key) {
		case "ticker":
			f.Ticker = strings.ToUpper(val)
		case "form":
			ft, err := domain.ParseFormType(val)
			if err != nil {
				words = append(words, w)
				continue
			}
			f.FormType = ft
		case "year":
			y, err := strconv.Atoi(val)
			if err != nil {
				words = append(words, w)
				continue
			}
			f.FiscalYear = y
		case "item":
			f.ItemLabel = strings.ReplaceAll(val, "_", " ")
		case "type":
			f.ChunkType = domain.ChunkType(strings.ToLower(val))
		default:
			words = append(words, w)
		}
	}
	return strings.Join(words, " "), f
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	metaStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	wordRe         = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	// Sentence ends need trailing whitespace so "$1.2 billion" stays whole.
	sentenceEndRe = regexp.MustCompile(`[.!?]["')\]]?\s+`)
)

// terms is the set of lowercase words in a query.
type terms map[string]struct{}

func newTerms(s string) terms {
	t := terms{}
	for _, w := range wordRe.FindAllString(strings.ToLower(s), -1) {
		t[w] = struct{}{}
	}
	return t
}

// overlap counts the distinct query words that occur in sentence.
func (t terms) overlap(sentence string) int {
	return len(newTerms(sentence).intersect(t))
}

func (t terms) intersect(o terms) terms {
	out := terms{}
	for w := range t {
		if _, ok := o[w]; ok {
			out[w] = struct{}{}
		}
	}
	return out
}

func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEndRe.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[last:loc[1]]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if s := strings.TrimSpace(text[last:]); s != "" {
		out = append(out, s)
	}
	return out
}

// highlightBestSentence renders the sentence sharing the most words with
// the query in the highlight style. The first sentence wins ties.
func highlightBestSentence(text, query string) string {
	sentences := splitSentences(text)
	q := newTerms(query)
	if len(sentences) == 0 || len(q) == 0 {
		return strings.Join(sentences, " ")
	}
	best, bestScore := 0, 0
	for i, s := range sentences {
		if n := q.overlap(s); n > bestScore {
			best, bestScore = i, n
		}
	}
	sentences[best] = highlightStyle.Render(sentences[best])
	return strings.Join(sentences, " ")
}
