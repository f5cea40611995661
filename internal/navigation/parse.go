// Package navigation discovers the brand, category and model menu of the
// catalog and flattens it into crawl tasks.
package navigation

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
)

// errMenuMissing is returned by Parse when the menu container is absent.
var errMenuMissing = errors.New("menu container missing")

// BrandNode is a brand with its categories.
type BrandNode struct {
	Name       string
	URL        string
	Categories []CategoryNode
}

// CategoryNode is a model category with its models.
type CategoryNode struct {
	Name   string
	URL    string
	Models []ModelNode
}

// ModelNode is a single model page.
type ModelNode struct {
	Name string
	URL  string
}

// Parse reads the menu tree from doc. Links are resolved against doc.URL.
// Empty branches are pruned: a brand needs a category and a category needs a
// model. Nodes without a name or a resolvable link are skipped.
func Parse(doc crawler.Document, sel Selectors) ([]BrandNode, error) {
	root, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse root page: %w", err)
	}
	base, _ := url.Parse(doc.URL)

	menu := root.Find(sel.Container).First()
	if menu.Length() == 0 {
		return nil, errMenuMissing
	}

	var brands []BrandNode
	menu.Find(sel.Brand).Each(func(_ int, brandEl *goquery.Selection) {
		name, href, ok := link(brandEl, sel.BrandLink, sel.BrandName, base)
		if !ok {
			return
		}
		brand := BrandNode{Name: name, URL: href}
		brandEl.Find(sel.Category).Each(func(_ int, catEl *goquery.Selection) {
			catName, catHref, ok := link(catEl, sel.CategoryLink, sel.CategoryName, base)
			if !ok {
				return
			}
			cat := CategoryNode{Name: catName, URL: catHref}
			catEl.Find(sel.Model).Each(func(_ int, modelEl *goquery.Selection) {
				modelName, modelHref, ok := link(modelEl, sel.ModelLink, sel.ModelName, base)
				if ok {
					cat.Models = append(cat.Models, ModelNode{Name: modelName, URL: modelHref})
				}
			})
			if len(cat.Models) > 0 {
				brand.Categories = append(brand.Categories, cat)
			}
		})
		if len(brand.Categories) > 0 {
			brands = append(brands, brand)
		}
	})
	return brands, nil
}

func link(el *goquery.Selection, linkSel, nameSel string, base *url.URL) (string, string, bool) {
	a := el.Find(linkSel).First()
	if a.Length() == 0 {
		return "", "", false
	}
	name := strings.TrimSpace(a.Find(nameSel).First().Text())
	href, ok := resolve(base, a.AttrOr("href", ""))
	if name == "" || !ok {
		return "", "", false
	}
	return name, href, true
}

func resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if (ref.Scheme != "http" && ref.Scheme != "https") || ref.Host == "" {
		return "", false
	}
	ref.Fragment = ""
	return ref.String(), true
}
