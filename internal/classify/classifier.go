// Package classify turns raw listing records into canonical part records.
//
// A record is kept only when its lower-cased name carries a part keyword and
// none of the storage, accessory or tooling exclusions. Its type is the name
// with the model and brand stripped out.
package classify

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
)

// Verdict is the outcome of classifying one record.
type Verdict string

const (
	// Accepted means the record became a part.
	Accepted Verdict = "accepted"
	// NoPartKeyword means the name carries no component noun.
	NoPartKeyword Verdict = "no_part_keyword"
	// StorageCapacity means the name looks like a full device ("256GB").
	StorageCapacity Verdict = "storage_capacity"
	// Accessory means the name is a case, skin or protector.
	Accessory Verdict = "accessory"
	// Other means the name is a tool or repair kit.
	Other Verdict = "other"
	// EmptyType means nothing was left after stripping brand and model.
	EmptyType Verdict = "empty_type"
)

// Verdicts lists every rejection reason in evaluation order.
var Verdicts = []Verdict{NoPartKeyword, StorageCapacity, Accessory, Other, EmptyType}

// Outcome carries either a rejection verdict or an accepted part, never both.
type Outcome struct {
	Verdict Verdict
	Part    crawler.Part
}

// Accepted reports whether the outcome produced a part.
func (o Outcome) Accepted() bool { return o.Verdict == Accepted }

// Classifier applies Rules to raw records.
type Classifier struct {
	rules Rules
	clock crawler.Clock
}

// New constructs a Classifier. A nil clock leaves ScrapedAt zero.
func New(rules Rules, clock crawler.Clock) *Classifier {
	if rules.StoragePattern == nil {
		rules.StoragePattern = defaultStoragePattern
	}
	return &Classifier{rules: rules, clock: clock}
}

// Classify decides whether raw is a part for the given task context.
func (c *Classifier) Classify(raw crawler.RawRecord, task crawler.Task) Outcome {
	if v := c.Check(raw.Name); v != Accepted {
		return Outcome{Verdict: v}
	}
	typ := DeriveType(raw.Name, task.Brand, task.Model)
	if typ == "" {
		return Outcome{Verdict: EmptyType}
	}
	part := crawler.Part{
		Brand:         task.Brand,
		ModelCategory: task.Category,
		Model:         task.Model,
		Name:          raw.Name,
		Type:          typ,
		InStock:       c.rules.DetectStock(raw),
		ImageURL:      raw.ImageURL,
		Location:      strings.TrimSpace(raw.LocationText),
	}
	if c.clock != nil {
		part.ScrapedAt = c.clock.Now().UTC()
	}
	return Outcome{Verdict: Accepted, Part: part}
}

// Check applies the keyword and pattern rules to a name.
func (c *Classifier) Check(name string) Verdict {
	lower := strings.ToLower(name)
	switch {
	case !containsAny(lower, c.rules.PartKeywords):
		return NoPartKeyword
	case c.rules.StoragePattern.MatchString(lower):
		return StorageCapacity
	case containsAny(lower, c.rules.AccessoryKeywords):
		return Accessory
	case containsAny(lower, c.rules.OtherKeywords):
		return Other
	}
	return Accepted
}

// DetectStock reports availability using the default rules.
func DetectStock(raw crawler.RawRecord) bool {
	return DefaultRules().DetectStock(raw)
}

// DetectStock reports availability. Indicator text wins; the record markup is
// only scanned when no indicator element exists. Out-of-stock terms override
// stock terms in both places.
func (r Rules) DetectStock(raw crawler.RawRecord) bool {
	if raw.HasStockIndicator {
		text := strings.ToLower(raw.StockText)
		if containsAny(text, r.OutOfStockTerms) {
			return false
		}
		return containsAny(text, r.StockTerms)
	}
	markup := strings.ToLower(raw.Markup)
	if containsAny(markup, r.OutOfStockTerms) {
		return false
	}
	return containsAny(markup, r.MarkupStockTerms)
}

// separatorRuns matches dashes and any Unicode space, including NBSP and \v.
var separatorRuns = regexp.MustCompile(`[\s\v\p{Z}\x{FEFF}-]+`)

// DeriveType strips every case-insensitive occurrence of model, then brand,
// from name and collapses whitespace and dash runs.
func DeriveType(name, brand, model string) string {
	rest := name
	for _, token := range []string{model, brand} {
		if strings.TrimSpace(token) == "" {
			continue
		}
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(token))
		rest = re.ReplaceAllString(rest, "")
	}
	return strings.TrimSpace(separatorRuns.ReplaceAllString(rest, " "))
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
