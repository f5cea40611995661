package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
)

var scrapedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	for range schema {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveNavigationReplacesTables(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	nav := crawler.Navigation{
		Brands:     []crawler.Brand{{Name: "Apple", URL: "https://example.com/apple"}},
		Categories: []crawler.Category{{Brand: "Apple", Name: "iPhone", URL: "https://example.com/iphone"}},
		Models: []crawler.Model{
			{Brand: "Apple", ModelCategory: "iPhone", Name: "iPhone 12", URL: "https://example.com/iphone-12"},
			{Brand: "Apple", ModelCategory: "iPhone", Name: "iPhone 13", URL: "https://example.com/iphone-13"},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM models").WillReturnResult(pgxmock.NewResult("DELETE", 5))
	mock.ExpectExec("DELETE FROM categories").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM brands").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"brands"}, []string{"name", "url"}).WillReturnResult(1)
	mock.ExpectCopyFrom(pgx.Identifier{"categories"}, []string{"brand", "name", "url"}).WillReturnResult(1)
	mock.ExpectCopyFrom(pgx.Identifier{"models"}, []string{"brand", "model_category", "name", "url"}).WillReturnResult(2)
	mock.ExpectCommit()

	require.NoError(t, store.SaveNavigation(context.Background(), nav))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveNavigationRollsBackOnError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM models").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err := store.SaveNavigation(context.Background(), crawler.Navigation{})
	require.ErrorContains(t, err, "clear models")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadNavigationEmpty(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT name, url FROM brands").WillReturnRows(pgxmock.NewRows([]string{"name", "url"}))

	_, err := store.LoadNavigation(context.Background())
	require.ErrorIs(t, err, crawler.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadNavigation(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT name, url FROM brands").
		WillReturnRows(pgxmock.NewRows([]string{"name", "url"}).AddRow("Apple", "https://example.com/apple"))
	mock.ExpectQuery("SELECT brand, name, url FROM categories").
		WillReturnRows(pgxmock.NewRows([]string{"brand", "name", "url"}).AddRow("Apple", "iPhone", "https://example.com/iphone"))
	mock.ExpectQuery("SELECT brand, model_category, name, url FROM models").
		WillReturnRows(pgxmock.NewRows([]string{"brand", "model_category", "name", "url"}).
			AddRow("Apple", "iPhone", "iPhone 12", "https://example.com/iphone-12"))

	nav, err := store.LoadNavigation(context.Background())
	require.NoError(t, err)
	require.Equal(t, []crawler.Brand{{Name: "Apple", URL: "https://example.com/apple"}}, nav.Brands)
	require.Equal(t, "Apple", nav.Categories[0].Brand)
	require.Equal(t, "iPhone", nav.Models[0].ModelCategory)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSnapshotUpsertsAndPrunes(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	p := crawler.Part{
		Brand: "Apple", ModelCategory: "iPhone", Model: "iPhone 12",
		Name: "iPhone 12 Battery", Type: "Battery", InStock: true,
		ImageURL: "https://example.com/b.jpg", ScrapedAt: scrapedAt,
	}
	key := crawler.Key(p)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO parts").
		WithArgs(key, p.Brand, p.ModelCategory, p.Model, p.Name, p.Type, p.InStock, p.ImageURL, p.Location, p.ScrapedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM parts").
		WithArgs([]string{key}).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	require.NoError(t, store.SaveSnapshot(context.Background(), []crawler.Part{p}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSnapshotRollsBackOnUpsertFailure(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO parts").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := store.SaveSnapshot(context.Background(), []crawler.Part{{Name: "x", Type: "Battery"}})
	require.ErrorContains(t, err, "upsert part")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadSnapshot(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT brand, model_category, model, name, type, in_stock").
		WillReturnRows(pgxmock.NewRows([]string{
			"brand", "model_category", "model", "name", "type", "in_stock", "image_url", "location", "scraped_at",
		}).AddRow("Apple", "iPhone", "iPhone 12", "iPhone 12 Battery", "Battery", false, "", "Amsterdam", scrapedAt))

	parts, err := store.LoadSnapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, []crawler.Part{{
		Brand: "Apple", ModelCategory: "iPhone", Model: "iPhone 12",
		Name: "iPhone 12 Battery", Type: "Battery", Location: "Amsterdam", ScrapedAt: scrapedAt,
	}}, parts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChangesetRoundTrip(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	cs := crawler.Changeset{
		RunID:       "run-1",
		GeneratedAt: scrapedAt,
		Added:       []crawler.Part{},
		Removed:     []crawler.Part{},
		Updated:     []crawler.PartUpdate{},
		Unchanged:   7,
	}
	body, err := json.Marshal(cs)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO changesets").
		WithArgs(cs.RunID, cs.GeneratedAt, body).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT body FROM changesets").
		WillReturnRows(pgxmock.NewRows([]string{"body"}).AddRow(body))

	require.NoError(t, store.SaveChangeset(context.Background(), cs))
	got, err := store.LoadChangeset(context.Background())
	require.NoError(t, err)
	require.Equal(t, cs, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadChangesetMissing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT body FROM changesets").WillReturnError(pgx.ErrNoRows)

	_, err := store.LoadChangeset(context.Background())
	require.ErrorIs(t, err, crawler.ErrNotFound)
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
	_, err = NewWithPool(nil)
	require.Error(t, err)
}
