package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
)

func TestStoreRoundTripAndNotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStore()

	_, err := s.LoadSnapshot(ctx)
	require.ErrorIs(t, err, crawler.ErrNotFound)
	_, err = s.LoadNavigation(ctx)
	require.ErrorIs(t, err, crawler.ErrNotFound)
	_, err = s.LoadChangeset(ctx)
	require.ErrorIs(t, err, crawler.ErrNotFound)

	parts := []crawler.Part{{Brand: "Apple", Model: "iPhone 12", Name: "iPhone 12 Battery", Type: "Battery"}}
	require.NoError(t, s.SaveSnapshot(ctx, parts))
	parts[0].Name = "mutated"
	got, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, "iPhone 12 Battery", got[0].Name)

	require.NoError(t, s.SaveSnapshot(ctx, nil))
	got, err = s.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.Empty(t, got)

	nav := crawler.Navigation{Brands: []crawler.Brand{{Name: "Apple", URL: "https://example.com/apple"}}}
	require.NoError(t, s.SaveNavigation(ctx, nav))
	loaded, err := s.LoadNavigation(ctx)
	require.NoError(t, err)
	require.Equal(t, nav.Brands, loaded.Brands)
	require.Empty(t, loaded.Models)

	require.NoError(t, s.SaveChangeset(ctx, crawler.Changeset{RunID: "run-1", Unchanged: 3}))
	cs, err := s.LoadChangeset(ctx)
	require.NoError(t, err)
	require.Equal(t, "run-1", cs.RunID)
	require.NoError(t, s.Close(ctx))
}
