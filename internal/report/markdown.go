// Package report renders a run's changeset as Markdown.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/nao1215/markdown"

	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
)

// Stats are the run counters shown above the changeset.
type Stats struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Tasks     int
	Completed int
	Failed    int
	Raw       int
	Parts     int
	Snapshot  int
	// Rejected counts rejected listings by reason.
	Rejected map[string]int
}

// WriteChangeset writes stats followed by the added, removed and updated
// parts.
func WriteChangeset(w io.Writer, stats Stats, cs crawler.Changeset) error {
	md := markdown.NewMarkdown(w)

	md.H1("Parts catalog changeset")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run", "`" + stats.RunID + "`"},
			{"Generated", cs.GeneratedAt.UTC().Format(time.RFC3339)},
			{"Duration", stats.Duration.Round(time.Second).String()},
			{"Tasks", fmt.Sprintf("%d (%d completed, %d failed)", stats.Tasks, stats.Completed, stats.Failed)},
			{"Raw listings", strconv.Itoa(stats.Raw)},
			{"Parts this run", strconv.Itoa(stats.Parts)},
			{"Snapshot size", strconv.Itoa(stats.Snapshot)},
		},
	})
	md.PlainText("")

	writeRejected(md, stats.Rejected)

	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Change", "Count"},
		Rows: [][]string{
			{"Added", strconv.Itoa(len(cs.Added))},
			{"Removed", strconv.Itoa(len(cs.Removed))},
			{"Updated", strconv.Itoa(len(cs.Updated))},
			{"Unchanged", strconv.Itoa(cs.Unchanged)},
		},
	})
	md.PlainText("")

	if cs.Empty() {
		md.Note("No changes since the previous run.")
		md.PlainText("")
		return md.Build()
	}

	writeParts(md, "Added", cs.Added)
	writeParts(md, "Removed", cs.Removed)
	writeUpdates(md, cs.Updated)
	return md.Build()
}

func writeRejected(md *markdown.Markdown, rejected map[string]int) {
	if len(rejected) == 0 {
		return
	}
	reasons := make([]string, 0, len(rejected))
	for r := range rejected {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	rows := make([][]string, 0, len(reasons))
	for _, r := range reasons {
		rows = append(rows, []string{r, strconv.Itoa(rejected[r])})
	}
	md.H2("Rejected listings")
	md.PlainText("")
	md.Table(markdown.TableSet{Header: []string{"Reason", "Count"}, Rows: rows})
	md.PlainText("")
}

func writeParts(md *markdown.Markdown, title string, parts []crawler.Part) {
	if len(parts) == 0 {
		return
	}
	rows := make([][]string, 0, len(parts))
	for _, p := range parts {
		rows = append(rows, []string{p.Brand, p.Model, p.Name, p.Type, stock(p.InStock)})
	}
	md.H2(title)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Brand", "Model", "Name", "Type", "Stock"},
		Rows:   rows,
	})
	md.PlainText("")
}

func writeUpdates(md *markdown.Markdown, updates []crawler.PartUpdate) {
	if len(updates) == 0 {
		return
	}
	rows := make([][]string, 0, len(updates))
	for _, u := range updates {
		rows = append(rows, []string{
			u.After.Brand,
			u.After.Model,
			u.After.Name,
			transition(stock(u.Before.InStock), stock(u.After.InStock)),
			transition(u.Before.Location, u.After.Location),
		})
	}
	md.H2("Updated")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Brand", "Model", "Name", "Stock", "Location"},
		Rows:   rows,
	})
	md.PlainText("")
}

func stock(in bool) string {
	if in {
		return "in stock"
	}
	return "out of stock"
}

func transition(before, after string) string {
	if before == after {
		return after
	}
	return before + " → " + after
}
