package services

import (
	"context"
	"log"

	"krayotmarket/internal/models"
	"krayotmarket/internal/storage"
)

const (
	accessibilityKey = "accessibility-settings"
	termsKey         = "terms_accepted"
)

// Preferences stores per-shopper display settings and the terms flag.
type Preferences struct {
	store storage.Store
}

func NewPreferences(store storage.Store) *Preferences {
	return &Preferences{store: store}
}

func prefKey(name, sessionID string) string {
	return name + ":" + sessionID
}

// Accessibility returns stored settings merged over the defaults. Unknown
// font sizes fall back to normal.
func (p *Preferences) Accessibility(ctx context.Context, sessionID string) models.AccessibilitySettings {
	settings := models.DefaultAccessibility()
	storage.LoadJSON(ctx, p.store, prefKey(accessibilityKey, sessionID), &settings)
	if !models.ValidFontSize(settings.FontSize) {
		settings.FontSize = models.FontNormal
	}
	return settings
}

// SetAccessibility saves settings. An invalid font size is rejected.
func (p *Preferences) SetAccessibility(ctx context.Context, sessionID string, s models.AccessibilitySettings) (models.AccessibilitySettings, error) {
	if s.FontSize == "" {
		s.FontSize = models.FontNormal
	}
	if !models.ValidFontSize(s.FontSize) {
		return models.AccessibilitySettings{}, &ValidationError{Field: "fontSize", Message: "גודל גופן לא נתמך"}
	}
	if err := storage.SaveJSON(ctx, p.store, prefKey(accessibilityKey, sessionID), s, 0); err != nil {
		log.Printf("Preferences.SetAccessibility - Error: %v", err)
		return models.AccessibilitySettings{}, err
	}
	return s, nil
}

// ResetAccessibility removes stored settings.
func (p *Preferences) ResetAccessibility(ctx context.Context, sessionID string) (models.AccessibilitySettings, error) {
	if err := p.store.Delete(ctx, prefKey(accessibilityKey, sessionID)); err != nil {
		return models.AccessibilitySettings{}, err
	}
	return models.DefaultAccessibility(), nil
}

// TermsAccepted reports whether the shopper accepted the terms.
func (p *Preferences) TermsAccepted(ctx context.Context, sessionID string) bool {
	raw, err := p.store.Get(ctx, prefKey(termsKey, sessionID))
	return err == nil && string(raw) == "1"
}

// AcceptTerms records acceptance.
func (p *Preferences) AcceptTerms(ctx context.Context, sessionID string) error {
	return p.store.Set(ctx, prefKey(termsKey, sessionID), []byte("1"), 0)
}
