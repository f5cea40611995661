// Package extract pulls raw listing records out of a model's product page.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
)

// Selectors are the CSS queries applied to a product listing page.
type Selectors struct {
	// Item matches one product tile.
	Item     string `mapstructure:"item"`
	Name     string `mapstructure:"name"`
	Stock    string `mapstructure:"stock"`
	Image    string `mapstructure:"image"`
	Location string `mapstructure:"location"`
}

// DefaultSelectors matches the catalog's product grid.
func DefaultSelectors() Selectors {
	return Selectors{
		Item:     "ol.product-items li.product-item .product-item-info, ol.row.product-items li.product-item .product-item-info",
		Name:     ".product-item-link, .product-item-name a, .name, h2, h3",
		Stock:    ".stock, .availability, .in-stock, .stock-status",
		Image:    "img.product-image-photo, .product-item-photo img, img",
		Location: ".product-location, .store-location",
	}
}

// WithDefaults fills empty fields from DefaultSelectors.
func (s Selectors) WithDefaults() Selectors {
	d := DefaultSelectors()
	if s.Item == "" {
		s.Item = d.Item
	}
	if s.Name == "" {
		s.Name = d.Name
	}
	if s.Stock == "" {
		s.Stock = d.Stock
	}
	if s.Image == "" {
		s.Image = d.Image
	}
	if s.Location == "" {
		s.Location = d.Location
	}
	return s
}

// Validate reports the first selector that does not compile.
func (s Selectors) Validate() error {
	for name, q := range map[string]string{
		"item": s.Item, "name": s.Name, "stock": s.Stock, "image": s.Image, "location": s.Location,
	} {
		if q == "" {
			continue
		}
		if _, err := cascadia.ParseGroup(q); err != nil {
			return fmt.Errorf("listing selector %s: %w", name, err)
		}
	}
	return nil
}

// Listings returns one RawRecord per product tile on the page, in document
// order. A page without tiles yields an empty slice, not an error.
func Listings(doc crawler.Document, sel Selectors) ([]crawler.RawRecord, error) {
	page, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}
	base, _ := url.Parse(doc.URL)

	records := []crawler.RawRecord{}
	var firstErr error
	page.Find(sel.Item).Each(func(_ int, item *goquery.Selection) {
		rec := crawler.RawRecord{
			Name:         strings.TrimSpace(item.Find(sel.Name).First().Text()),
			LocationText: strings.TrimSpace(item.Find(sel.Location).First().Text()),
		}
		if stock := item.Find(sel.Stock).First(); stock.Length() > 0 {
			rec.HasStockIndicator = true
			rec.StockText = stock.Text()
		} else {
			markup, err := item.Html()
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("render listing markup: %w", err)
			}
			rec.Markup = markup
		}
		if img := item.Find(sel.Image).First(); img.Length() > 0 {
			rec.ImageURL = imageURL(base, img)
		}
		records = append(records, rec)
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return records, nil
}

func imageURL(base *url.URL, img *goquery.Selection) string {
	src := strings.TrimSpace(img.AttrOr("src", ""))
	if src == "" {
		src = strings.TrimSpace(img.AttrOr("data-src", ""))
	}
	if src == "" {
		return ""
	}
	ref, err := url.Parse(src)
	if err != nil {
		return src
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	return ref.String()
}
