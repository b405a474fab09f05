package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krayotmarket/internal/models"
	"krayotmarket/internal/storage"
)

func TestAccessibilityDefaultsAndMerge(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	p := NewPreferences(store)

	assert.Equal(t, models.DefaultAccessibility(), p.Accessibility(ctx, "s"))

	// Partial stored settings keep defaults for the missing fields.
	require.NoError(t, store.Set(ctx, "accessibility-settings:s", []byte(`{"contrast":true}`), 0))
	got := p.Accessibility(ctx, "s")
	assert.True(t, got.Contrast)
	assert.Equal(t, models.FontNormal, got.FontSize)

	require.NoError(t, store.Set(ctx, "accessibility-settings:s", []byte(`{"fontSize":"huge"}`), 0))
	assert.Equal(t, models.FontNormal, p.Accessibility(ctx, "s").FontSize)

	require.NoError(t, store.Set(ctx, "accessibility-settings:s", []byte(`garbage`), 0))
	assert.Equal(t, models.DefaultAccessibility(), p.Accessibility(ctx, "s"))
}

func TestSetAndResetAccessibility(t *testing.T) {
	ctx := context.Background()
	p := NewPreferences(storage.NewMemoryStore())

	want := models.AccessibilitySettings{FontSize: models.FontXLarge, UnderlineLinks: true}
	_, err := p.SetAccessibility(ctx, "s", want)
	require.NoError(t, err)
	assert.Equal(t, want, p.Accessibility(ctx, "s"))

	_, err = p.SetAccessibility(ctx, "s", models.AccessibilitySettings{FontSize: "tiny"})
	assert.ErrorIs(t, err, ErrValidation)

	reset, err := p.ResetAccessibility(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultAccessibility(), reset)
	assert.Equal(t, models.DefaultAccessibility(), p.Accessibility(ctx, "s"))
}

func TestTermsAccepted(t *testing.T) {
	ctx := context.Background()
	p := NewPreferences(storage.NewMemoryStore())

	assert.False(t, p.TermsAccepted(ctx, "s"))
	require.NoError(t, p.AcceptTerms(ctx, "s"))
	assert.True(t, p.TermsAccepted(ctx, "s"))
	assert.False(t, p.TermsAccepted(ctx, "other"))
}
