package grammar

// defaultAliases maps informal component names produced by generation
// models to their canonical names. Unknown names pass through unchanged.
var defaultAliases = map[string]string{
	"Nav":           "NavigationHeader",
	"Navbar":        "NavigationHeader",
	"NavBar":        "NavigationHeader",
	"Header":        "NavigationHeader",
	"TopNav":        "NavigationHeader",
	"Hero":          "HeroSection",
	"HeroBanner":    "HeroSection",
	"Banner":        "HeroSection",
	"PageFooter":    "Footer",
	"FooterSection": "Footer",
	"Layout":        "AppLayout",
	"PageLayout":    "AppLayout",
	"Pricing":       "PricingSection",
	"PriceTable":    "PricingSection",
}

// AliasResolver canonicalizes component names via a static lookup table.
type AliasResolver struct {
	table map[string]string
}

// NewAliasResolver builds a resolver from the default table merged with
// extra entries. Extra entries override defaults on key collision.
func NewAliasResolver(extra map[string]string) *AliasResolver {
	table := make(map[string]string, len(defaultAliases)+len(extra))
	for k, v := range defaultAliases {
		table[k] = v
	}
	for k, v := range extra {
		table[k] = v
	}
	return &AliasResolver{table: table}
}

// Resolve returns the canonical name for name, or name itself when no
// alias is registered.
func (r *AliasResolver) Resolve(name string) string {
	if canonical, ok := r.table[name]; ok {
		return canonical
	}
	return name
}
