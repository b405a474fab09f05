package models

// Font size tiers offered by the accessibility menu.
const (
	FontNormal = "normal"
	FontLarge  = "large"
	FontXLarge = "x-large"
)

// AccessibilitySettings are the shopper's display preferences.
type AccessibilitySettings struct {
	FontSize       string `json:"fontSize"`
	Contrast       bool   `json:"contrast"`
	UnderlineLinks bool   `json:"underlineLinks"`
}

// DefaultAccessibility returns the settings used when nothing is stored.
func DefaultAccessibility() AccessibilitySettings {
	return AccessibilitySettings{FontSize: FontNormal}
}

// ValidFontSize reports whether s is one of the supported tiers.
func ValidFontSize(s string) bool {
	switch s {
	case FontNormal, FontLarge, FontXLarge:
		return true
	}
	return false
}
