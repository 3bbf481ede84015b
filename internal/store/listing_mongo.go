package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/iAmShivaySharma/bedspace-sub002/internal/models"
)

const listingsCollection = "listings"

type mongoListingStore struct {
	db *mongo.Database
}

// NewMongoListingStore creates a ListingStore backed by the given database.
func NewMongoListingStore(db *mongo.Database) ListingStore {
	return &mongoListingStore{db: db}
}

func (s *mongoListingStore) Insert(ctx context.Context, l *models.Listing) error {
	if l.ID.IsZero() {
		l.ID = primitive.NewObjectID()
	}
	if _, err := s.db.Collection(listingsCollection).InsertOne(ctx, l); err != nil {
		return fmt.Errorf("inserting listing %s: %w", l.ID.Hex(), err)
	}
	return nil
}

func (s *mongoListingStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Listing, error) {
	var l models.Listing
	err := s.db.Collection(listingsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&l)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding listing %s: %w", id.Hex(), err)
	}
	return &l, nil
}
