// Package reconcile diffs a run's parts against the previous snapshot.
package reconcile

import (
	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
)

// Reconcile compares the parts observed this run with the previous snapshot.
//
// Both inputs are keyed by crawler.Key; duplicates within one input collapse
// with the later record winning. The merged snapshot keeps previous records
// that were not re-observed, so a model that failed to load this run does not
// lose its parts. Removed still lists them for the audit trail.
//
// Reconcile is pure: identical inputs produce identical outputs.
func Reconcile(current, previous []crawler.Part) (crawler.Snapshot, crawler.Changeset) {
	cur := crawler.NewSnapshot(current)
	prev := crawler.NewSnapshot(previous)

	merged := make(crawler.Snapshot, len(cur)+len(prev))
	cs := crawler.Changeset{
		Added:   []crawler.Part{},
		Removed: []crawler.Part{},
		Updated: []crawler.PartUpdate{},
	}

	for _, p := range cur.Parts() {
		key := crawler.Key(p)
		before, ok := prev[key]
		switch {
		case !ok:
			cs.Added = append(cs.Added, p)
			merged[key] = p
		case Changed(before, p):
			cs.Updated = append(cs.Updated, crawler.PartUpdate{Before: before, After: p})
			merged[key] = p
		default:
			cs.Unchanged++
			merged[key] = before
		}
	}
	for _, p := range prev.Parts() {
		key := crawler.Key(p)
		if _, ok := cur[key]; ok {
			continue
		}
		cs.Removed = append(cs.Removed, p)
		merged[key] = p
	}
	return merged, cs
}

// Changed reports whether the tracked fields of a part differ between runs.
// Image URL and scrape time are not tracked.
func Changed(before, after crawler.Part) bool {
	return before.InStock != after.InStock ||
		before.Name != after.Name ||
		before.Type != after.Type ||
		before.Location != after.Location
}
