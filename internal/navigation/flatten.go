package navigation

import (
	"strings"

	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
)

// Result is the flattened navigation plus one task per model.
type Result struct {
	Navigation crawler.Navigation
	Tasks      []crawler.Task
	// DroppedModels counts models discarded for lacking a brand. The blank
	// brand and its categories are dropped with them.
	DroppedModels int
}

// Flatten turns the menu tree into flat entity lists and crawl tasks, in
// document order.
func Flatten(tree []BrandNode) Result {
	res := Result{
		Navigation: crawler.Navigation{
			Brands:     []crawler.Brand{},
			Categories: []crawler.Category{},
			Models:     []crawler.Model{},
		},
	}
	for _, b := range tree {
		if strings.TrimSpace(b.Name) == "" {
			for _, c := range b.Categories {
				res.DroppedModels += len(c.Models)
			}
			continue
		}
		res.Navigation.Brands = append(res.Navigation.Brands, crawler.Brand{Name: b.Name, URL: b.URL})
		for _, c := range b.Categories {
			res.Navigation.Categories = append(res.Navigation.Categories, crawler.Category{Name: c.Name, URL: c.URL, Brand: b.Name})
			for _, m := range c.Models {
				res.Navigation.Models = append(res.Navigation.Models, crawler.Model{
					Name:          m.Name,
					URL:           m.URL,
					Brand:         b.Name,
					ModelCategory: c.Name,
				})
				res.Tasks = append(res.Tasks, crawler.Task{Brand: b.Name, Category: c.Name, Model: m.Name, URL: m.URL})
			}
		}
	}
	return res
}
