package crawler

import (
	"slices"
	"strings"
	"time"
)

// UnknownType is substituted for a blank part type when building composite keys.
// Only legacy snapshots can carry a blank type; the classifier never produces one.
const UnknownType = "Unknown"

// Brand is the top level of the navigation tree.
type Brand struct {
	Name string `json:"name" bson:"name"`
	URL  string `json:"url" bson:"url"`
}

// Category is a model category scoped to a brand.
type Category struct {
	Name  string `json:"name" bson:"name"`
	URL   string `json:"url" bson:"url"`
	Brand string `json:"brand" bson:"brand"`
}

// Model is a leaf of the navigation tree. Parent names are flattened in.
type Model struct {
	Name          string `json:"name" bson:"name"`
	URL           string `json:"url" bson:"url"`
	Brand         string `json:"brand" bson:"brand"`
	ModelCategory string `json:"modelCategory" bson:"modelCategory"`
}

// Navigation holds the three flat entity lists produced by discovery.
type Navigation struct {
	Brands     []Brand    `json:"brands"`
	Categories []Category `json:"categories"`
	Models     []Model    `json:"models"`
}

// Task is one unit of crawl work: fetch and extract one model's listing page.
type Task struct {
	Brand    string `json:"brand"`
	Category string `json:"category"`
	Model    string `json:"model"`
	URL      string `json:"url"`
}

// RawRecord is a single listing extracted from a page, before classification.
type RawRecord struct {
	Name string
	// StockText is the text of the stock indicator element, when one exists.
	StockText         string
	HasStockIndicator bool
	// Markup is the record's inner HTML, scanned when no indicator exists.
	Markup       string
	ImageURL     string
	LocationText string
}

// Part is a classified listing, the unit stored in a snapshot.
type Part struct {
	Brand         string    `json:"brand" bson:"brand"`
	ModelCategory string    `json:"modelCategory" bson:"modelCategory"`
	Model         string    `json:"model" bson:"model"`
	Name          string    `json:"name" bson:"name"`
	Type          string    `json:"type" bson:"type"`
	InStock       bool      `json:"inStock" bson:"inStock"`
	ImageURL      string    `json:"imageUrl,omitempty" bson:"imageUrl,omitempty"`
	Location      string    `json:"location,omitempty" bson:"location,omitempty"`
	ScrapedAt     time.Time `json:"scrapedAt" bson:"scrapedAt"`
}

// Key returns the composite key identifying a part across runs.
func Key(p Part) string {
	typ := p.Type
	if strings.TrimSpace(typ) == "" {
		typ = UnknownType
	}
	return strings.Join([]string{p.Brand, p.ModelCategory, p.Model, p.Name, typ}, "||")
}

// Snapshot is the full set of parts as of one completed run, keyed by Key.
type Snapshot map[string]Part

// NewSnapshot indexes parts by composite key. Later duplicates win.
func NewSnapshot(parts []Part) Snapshot {
	s := make(Snapshot, len(parts))
	for _, p := range parts {
		s[Key(p)] = p
	}
	return s
}

// Parts returns the snapshot records ordered by composite key.
func (s Snapshot) Parts() []Part {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]Part, 0, len(keys))
	for _, k := range keys {
		out = append(out, s[k])
	}
	return out
}

// PartUpdate pairs the stored and freshly observed versions of a part.
type PartUpdate struct {
	Before Part `json:"before" bson:"before"`
	After  Part `json:"after" bson:"after"`
}

// Changeset is the diff between the previous snapshot and the current run.
type Changeset struct {
	RunID       string       `json:"runId" bson:"runId"`
	GeneratedAt time.Time    `json:"generatedAt" bson:"generatedAt"`
	Added       []Part       `json:"added" bson:"added"`
	Removed     []Part       `json:"removed" bson:"removed"`
	Updated     []PartUpdate `json:"updated" bson:"updated"`
	Unchanged   int          `json:"unchanged" bson:"unchanged"`
}

// Empty reports whether the changeset carries no additions, removals or updates.
func (c Changeset) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Updated) == 0
}
