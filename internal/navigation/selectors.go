package navigation

// Selectors are the CSS queries used to walk the catalog menu.
type Selectors struct {
	// Container is the menu root. Its absence means the markup changed.
	Container string `mapstructure:"container"`
	// Ready is waited on before the page is parsed; the menu is loaded by AJAX.
	Ready        string `mapstructure:"ready"`
	Brand        string `mapstructure:"brand"`
	BrandLink    string `mapstructure:"brand_link"`
	BrandName    string `mapstructure:"brand_name"`
	Category     string `mapstructure:"category"`
	CategoryLink string `mapstructure:"category_link"`
	CategoryName string `mapstructure:"category_name"`
	Model        string `mapstructure:"model"`
	ModelLink    string `mapstructure:"model_link"`
	ModelName    string `mapstructure:"model_name"`
}

// DefaultSelectors matches the parts catalog menu markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Container:    "ul.groupmenu.by-parts",
		Ready:        "ul.groupmenu.by-parts li.level0 a.menu-link",
		Brand:        "li.level0",
		BrandLink:    "a.menu-link",
		BrandName:    "span:last-child",
		Category:     "ul.level1 > li.level1",
		CategoryLink: "a.menu-link",
		CategoryName: "span",
		Model:        "div.level2",
		ModelLink:    "a.groupdrop-title",
		ModelName:    "span",
	}
}

// WithDefaults fills empty fields from DefaultSelectors.
func (s Selectors) WithDefaults() Selectors {
	d := DefaultSelectors()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&s.Container, d.Container)
	fill(&s.Ready, d.Ready)
	fill(&s.Brand, d.Brand)
	fill(&s.BrandLink, d.BrandLink)
	fill(&s.BrandName, d.BrandName)
	fill(&s.Category, d.Category)
	fill(&s.CategoryLink, d.CategoryLink)
	fill(&s.CategoryName, d.CategoryName)
	fill(&s.Model, d.Model)
	fill(&s.ModelLink, d.ModelLink)
	fill(&s.ModelName, d.ModelName)
	return s
}
