// Package render prints queries and results to a terminal in the shape of
// the original course tool: a "Search (" line naming the query parts, then
// numbered results separated by a rule.
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/document"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/searcher/parser"
)

const rule = "========================================="

// Printer writes to w. Colour is chosen by lipgloss from w: a non-terminal
// writer gets plain text.
type Printer struct {
	w      io.Writer
	header lipgloss.Style
	label  lipgloss.Style
	score  lipgloss.Style
	muted  lipgloss.Style
}

func New(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:      w,
		header: r.NewStyle().Bold(true),
		label:  r.NewStyle().Foreground(lipgloss.Color("12")),
		score:  r.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
		muted:  r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

type part struct {
	label string
	field string
	occur parser.Occur
}

var parts = []part{
	{"in title", document.FieldTitle, parser.Must},
	{"not in title", document.FieldTitle, parser.MustNot},
	{"in abstract", document.FieldAbstract, parser.Must},
	{"not in abstract", document.FieldAbstract, parser.MustNot},
	{"in query", document.FieldQuery, parser.Must},
	{"not in query", document.FieldQuery, parser.MustNot},
	{"task", document.FieldTaskNumber, parser.Must},
	{"not task", document.FieldTaskNumber, parser.MustNot},
	{"relevancy", document.FieldRelevance, parser.Must},
	{"not relevancy", document.FieldRelevance, parser.MustNot},
}

// Query prints the non-empty parts of q.
func (p *Printer) Query(q parser.Query) {
	var sections []string
	for _, pt := range parts {
		values := q.Values(pt.field, pt.occur)
		if len(values) == 0 {
			continue
		}
		sections = append(sections, p.label.Render(pt.label+":")+" ["+strings.Join(values, ", ")+"]")
	}
	fmt.Fprintln(p.w, p.header.Render("Search (")+strings.Join(sections, "; ")+p.header.Render(")"))
}

// Results prints every result of res, or " no results".
func (p *Printer) Results(res *executor.SearchResult) {
	if res == nil || len(res.Results) == 0 {
		fmt.Fprintln(p.w, p.muted.Render(" no results"))
		return
	}
	for i, r := range res.Results {
		fmt.Fprintf(p.w, " %d. %s - %s\n", i+1, p.score.Render("Score: "+FormatScore(r.Score)), Fields(r.Document))
		fmt.Fprintln(p.w, p.muted.Render(rule))
	}
	if res.TotalHits > len(res.Results) {
		fmt.Fprintln(p.w, p.muted.Render(fmt.Sprintf(" showing %d of %d matches", len(res.Results), res.TotalHits)))
	}
}

// FormatScore renders a score with at most four decimals and no trailing
// zeros.
func FormatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

// Fields renders the stored fields of d in a fixed order.
func Fields(d document.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s=%q %s=%q", document.FieldTitle, d.Title, document.FieldAbstract, d.Abstract)
	if d.Query != "" {
		fmt.Fprintf(&b, " %s=%q", document.FieldQuery, d.Query)
	}
	fmt.Fprintf(&b, " %s=%d %s=%s", document.FieldTaskNumber, d.TaskNumber, document.FieldRelevance, d.RelevanceTerm())
	return b.String()
}
