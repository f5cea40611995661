package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
)

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Database: "catalog"})
	require.Error(t, err)
	_, err = New(context.Background(), Config{URI: "mongodb://localhost:27017"})
	require.Error(t, err)
	_, err = NewWithDatabase(nil)
	require.Error(t, err)
}

func TestStoreAgainstMockDeployment(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("load changeset not found", func(mt *mtest.T) {
		store, err := NewWithDatabase(mt.DB)
		require.NoError(mt, err)
		ns := mt.DB.Name() + "." + changesetsCollection
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err = store.LoadChangeset(context.Background())
		require.ErrorIs(mt, err, crawler.ErrNotFound)
	})

	mt.Run("save changeset", func(mt *mtest.T) {
		store, err := NewWithDatabase(mt.DB)
		require.NoError(mt, err)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		err = store.SaveChangeset(context.Background(), crawler.Changeset{RunID: "run-1", GeneratedAt: time.Now().UTC()})
		require.NoError(mt, err)
	})

	mt.Run("load snapshot", func(mt *mtest.T) {
		store, err := NewWithDatabase(mt.DB)
		require.NoError(mt, err)
		ns := mt.DB.Name() + "." + partsCollection
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "Apple||iPhone||iPhone 12||iPhone 12 Battery||Battery"},
			{Key: "brand", Value: "Apple"},
			{Key: "modelCategory", Value: "iPhone"},
			{Key: "model", Value: "iPhone 12"},
			{Key: "name", Value: "iPhone 12 Battery"},
			{Key: "type", Value: "Battery"},
			{Key: "inStock", Value: true},
		}))

		parts, err := store.LoadSnapshot(context.Background())
		require.NoError(mt, err)
		require.Len(mt, parts, 1)
		require.Equal(mt, "Battery", parts[0].Type)
		require.True(mt, parts[0].InStock)
	})

	mt.Run("load navigation empty", func(mt *mtest.T) {
		store, err := NewWithDatabase(mt.DB)
		require.NoError(mt, err)
		ns := mt.DB.Name() + "." + brandsCollection
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err = store.LoadNavigation(context.Background())
		require.ErrorIs(mt, err, crawler.ErrNotFound)
	})

	mt.Run("save navigation", func(mt *mtest.T) {
		store, err := NewWithDatabase(mt.DB)
		require.NoError(mt, err)
		// delete + insert for brands, delete for the empty categories and models.
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 2}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}),
		)

		err = store.SaveNavigation(context.Background(), crawler.Navigation{
			Brands: []crawler.Brand{{Name: "Apple", URL: "https://example.com/apple"}},
		})
		require.NoError(mt, err)
	})
}
