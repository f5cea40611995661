// Package mongo provides a MongoDB-backed catalog store. Navigation
// collections are replaced wholesale; parts are upserted by composite key.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
)

const (
	brandsCollection     = "brands"
	categoriesCollection = "categories"
	modelsCollection     = "models"
	partsCollection      = "parts"
	changesetsCollection = "changesets"
)

// Config holds connection settings.
type Config struct {
	URI      string
	Database string
	// ConnectTimeout bounds connect and ping; defaults to 10s.
	ConnectTimeout time.Duration
}

// partDoc is a part keyed by its composite key.
type partDoc struct {
	ID           string `bson:"_id"`
	crawler.Part `bson:",inline"`
}

// Store implements crawler.Store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects and pings the server.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("storage.mongo.uri is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("storage.mongo.database is required")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, &crawler.SetupError{Component: "store", Err: fmt.Errorf("connect mongo: %w", err)}
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, &crawler.SetupError{Component: "store", Err: fmt.Errorf("ping mongo: %w", err)}
	}
	return &Store{client: client, db: client.Database(cfg.Database)}, nil
}

// NewWithDatabase wraps an existing database handle. Close does not disconnect
// its client.
func NewWithDatabase(db *mongo.Database) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &Store{db: db}, nil
}

// Close disconnects the client this store opened.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}

// SaveNavigation clears and refills the three navigation collections.
func (s *Store) SaveNavigation(ctx context.Context, nav crawler.Navigation) error {
	if err := s.replace(ctx, brandsCollection, toDocs(nav.Brands)); err != nil {
		return err
	}
	if err := s.replace(ctx, categoriesCollection, toDocs(nav.Categories)); err != nil {
		return err
	}
	return s.replace(ctx, modelsCollection, toDocs(nav.Models))
}

func (s *Store) replace(ctx context.Context, name string, docs []any) error {
	coll := s.db.Collection(name)
	if _, err := coll.DeleteMany(ctx, bson.D{}); err != nil {
		return fmt.Errorf("clear %s: %w", name, err)
	}
	if len(docs) == 0 {
		return nil
	}
	if _, err := coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert %s: %w", name, err)
	}
	return nil
}

// LoadNavigation returns crawler.ErrNotFound when no brands are stored.
func (s *Store) LoadNavigation(ctx context.Context) (crawler.Navigation, error) {
	var nav crawler.Navigation
	if err := s.findAll(ctx, brandsCollection, bson.D{{Key: "name", Value: 1}}, &nav.Brands); err != nil {
		return crawler.Navigation{}, err
	}
	if len(nav.Brands) == 0 {
		return crawler.Navigation{}, crawler.ErrNotFound
	}
	if err := s.findAll(ctx, categoriesCollection, bson.D{{Key: "brand", Value: 1}, {Key: "name", Value: 1}}, &nav.Categories); err != nil {
		return crawler.Navigation{}, err
	}
	if err := s.findAll(ctx, modelsCollection, bson.D{{Key: "brand", Value: 1}, {Key: "name", Value: 1}}, &nav.Models); err != nil {
		return crawler.Navigation{}, err
	}
	return nav, nil
}

// LoadSnapshot returns every stored part ordered by key.
func (s *Store) LoadSnapshot(ctx context.Context) ([]crawler.Part, error) {
	var docs []partDoc
	if err := s.findAll(ctx, partsCollection, bson.D{{Key: "_id", Value: 1}}, &docs); err != nil {
		return nil, err
	}
	parts := make([]crawler.Part, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, d.Part)
	}
	return parts, nil
}

// SaveSnapshot upserts every part, then removes documents whose key is absent.
func (s *Store) SaveSnapshot(ctx context.Context, parts []crawler.Part) error {
	coll := s.db.Collection(partsCollection)
	keys := make([]string, 0, len(parts))
	models := make([]mongo.WriteModel, 0, len(parts))
	for _, p := range parts {
		key := crawler.Key(p)
		keys = append(keys, key)
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "_id", Value: key}}).
			SetReplacement(partDoc{ID: key, Part: p}).
			SetUpsert(true))
	}
	if len(models) > 0 {
		if _, err := coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
			return fmt.Errorf("upsert parts: %w", err)
		}
	}
	filter := bson.D{{Key: "_id", Value: bson.D{{Key: "$nin", Value: keys}}}}
	if _, err := coll.DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("prune parts: %w", err)
	}
	return nil
}

// SaveChangeset upserts the changeset by run id.
func (s *Store) SaveChangeset(ctx context.Context, cs crawler.Changeset) error {
	_, err := s.db.Collection(changesetsCollection).ReplaceOne(ctx,
		bson.D{{Key: "runId", Value: cs.RunID}},
		cs,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save changeset: %w", err)
	}
	return nil
}

// LoadChangeset returns the most recent changeset.
func (s *Store) LoadChangeset(ctx context.Context) (crawler.Changeset, error) {
	var cs crawler.Changeset
	opts := options.FindOne().SetSort(bson.D{{Key: "generatedAt", Value: -1}})
	err := s.db.Collection(changesetsCollection).FindOne(ctx, bson.D{}, opts).Decode(&cs)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return crawler.Changeset{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.Changeset{}, fmt.Errorf("load changeset: %w", err)
	}
	return cs, nil
}

func (s *Store) findAll(ctx context.Context, name string, sort bson.D, out any) error {
	cursor, err := s.db.Collection(name).Find(ctx, bson.D{}, options.Find().SetSort(sort))
	if err != nil {
		return fmt.Errorf("find %s: %w", name, err)
	}
	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func toDocs[T any](items []T) []any {
	docs := make([]any, 0, len(items))
	for _, it := range items {
		docs = append(docs, it)
	}
	return docs
}
