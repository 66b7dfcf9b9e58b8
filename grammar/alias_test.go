package grammar_test

import (
	"testing"

	"github.com/lodeworks/sluice/grammar"
)

func TestAliasResolver_Defaults(t *testing.T) {
	r := grammar.NewAliasResolver(nil)

	tests := []struct {
		in   string
		want string
	}{
		{"Navbar", "NavigationHeader"},
		{"Nav", "NavigationHeader"},
		{"Header", "NavigationHeader"},
		{"HeroBanner", "HeroSection"},
		{"PageFooter", "Footer"},
		{"Layout", "AppLayout"},
		// Unknown names pass through unchanged.
		{"PricingSection", "PricingSection"},
		{"Widget42", "Widget42"},
	}
	for _, tt := range tests {
		if got := r.Resolve(tt.in); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAliasResolver_ExtraOverridesDefaults(t *testing.T) {
	r := grammar.NewAliasResolver(map[string]string{
		"Header":  "SiteHeader",
		"Sidebar": "SideNav",
	})

	if got := r.Resolve("Header"); got != "SiteHeader" {
		t.Errorf("Resolve(Header) = %q, want override SiteHeader", got)
	}
	if got := r.Resolve("Sidebar"); got != "SideNav" {
		t.Errorf("Resolve(Sidebar) = %q, want SideNav", got)
	}
	if got := r.Resolve("Navbar"); got != "NavigationHeader" {
		t.Errorf("Resolve(Navbar) = %q, want default NavigationHeader", got)
	}
}
