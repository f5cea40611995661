package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
)

func TestWriteChangesetListsChanges(t *testing.T) {
	t.Parallel()

	battery := crawler.Part{Brand: "Apple", Model: "iPhone 12", Name: "iPhone 12 Battery", Type: "Battery"}
	restocked := battery
	restocked.InStock = true
	cs := crawler.Changeset{
		RunID:       "run-1",
		GeneratedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Added:       []crawler.Part{{Brand: "Apple", Model: "iPhone 13", Name: "iPhone 13 LCD Screen", Type: "LCD Screen", InStock: true}},
		Removed:     []crawler.Part{},
		Updated:     []crawler.PartUpdate{{Before: battery, After: restocked}},
		Unchanged:   5,
	}
	stats := Stats{RunID: "run-1", Tasks: 3, Completed: 2, Failed: 1, Raw: 9, Parts: 7, Snapshot: 7,
		Rejected: map[string]int{"accessory": 2}}

	var buf bytes.Buffer
	require.NoError(t, WriteChangeset(&buf, stats, cs))
	out := buf.String()

	require.Contains(t, out, "# Parts catalog changeset")
	require.Contains(t, out, "`run-1`")
	require.Contains(t, out, "3 (2 completed, 1 failed)")
	require.Contains(t, out, "## Rejected listings")
	require.Contains(t, out, "accessory")
	require.Contains(t, out, "## Added")
	require.Contains(t, out, "iPhone 13 LCD Screen")
	require.NotContains(t, out, "## Removed")
	require.Contains(t, out, "## Updated")
	require.Contains(t, out, "out of stock → in stock")
}

func TestWriteChangesetEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteChangeset(&buf, Stats{RunID: "run-2"}, crawler.Changeset{RunID: "run-2", Unchanged: 4}))
	out := buf.String()
	require.Contains(t, out, "No changes since the previous run.")
	require.NotContains(t, out, "## Added")
	require.NotContains(t, out, "## Rejected listings")
}
