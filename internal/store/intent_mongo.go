package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iAmShivaySharma/bedspace-sub002/internal/db"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/models"
)

const paymentIntentsCollection = "payment_intents"

// mongoIntentStore implements PaymentIntentStore on MongoDB.
type mongoIntentStore struct {
	db *mongo.Database
}

// NewMongoPaymentIntentStore creates a PaymentIntentStore backed by the
// given database.
func NewMongoPaymentIntentStore(database *mongo.Database) PaymentIntentStore {
	return &mongoIntentStore{db: database}
}

// EnsurePaymentIntentIndexes creates the unique index on gateway_intent_id.
// Safe to call on every startup.
func EnsurePaymentIntentIndexes(ctx context.Context, database *mongo.Database) error {
	_, err := database.Collection(paymentIntentsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "gateway_intent_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("creating payment intent indexes: %w", err)
	}
	return nil
}

func (s *mongoIntentStore) collection() *mongo.Collection {
	return s.db.Collection(paymentIntentsCollection)
}

func (s *mongoIntentStore) Insert(ctx context.Context, pi *models.PaymentIntent) error {
	if pi.ID.IsZero() {
		pi.ID = primitive.NewObjectID()
	}
	// The unique gateway_intent_id index can race with the gateway's own
	// retries; retry duplicate-key failures the standard way.
	err := db.Try(func() error {
		_, insErr := s.collection().InsertOne(ctx, pi)
		return insErr
	})
	if err != nil {
		return fmt.Errorf("inserting payment intent %s: %w", pi.ID.Hex(), err)
	}
	return nil
}

func (s *mongoIntentStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	if _, err := s.collection().DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("deleting payment intent %s: %w", id.Hex(), err)
	}
	return nil
}

func (s *mongoIntentStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.PaymentIntent, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *mongoIntentStore) FindByBookingAndGatewayID(ctx context.Context, bookingID primitive.ObjectID, gatewayIntentID string) (*models.PaymentIntent, error) {
	return s.findOne(ctx, bson.M{"booking_id": bookingID, "gateway_intent_id": gatewayIntentID})
}

func (s *mongoIntentStore) FindActiveByBooking(ctx context.Context, bookingID primitive.ObjectID) (*models.PaymentIntent, error) {
	return s.findOne(ctx, bson.M{
		"booking_id": bookingID,
		"status": bson.M{"$nin": bson.A{
			models.IntentStatusCanceled,
			models.IntentStatusFailed,
		}},
	})
}

func (s *mongoIntentStore) findOne(ctx context.Context, filter bson.M) (*models.PaymentIntent, error) {
	var pi models.PaymentIntent
	err := s.collection().FindOne(ctx, filter).Decode(&pi)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding payment intent: %w", err)
	}
	return &pi, nil
}

func (s *mongoIntentStore) UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to models.IntentStatus) (*models.PaymentIntent, error) {
	filter := bson.M{"_id": id, "status": from}
	update := bson.M{"$set": bson.M{"status": to, "updated_at": time.Now().UTC()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.PaymentIntent
	err := s.collection().FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNoMatch
	}
	if err != nil {
		return nil, fmt.Errorf("updating payment intent %s status %s -> %s: %w", id.Hex(), from, to, err)
	}
	return &updated, nil
}

func (s *mongoIntentStore) SetNeedsRemoteCancel(ctx context.Context, id primitive.ObjectID, needs bool) error {
	update := bson.M{"$set": bson.M{"needs_remote_cancel": needs, "updated_at": time.Now().UTC()}}
	result, err := s.collection().UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("flagging payment intent %s for remote cancel: %w", id.Hex(), err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoIntentStore) FindStale(ctx context.Context, updatedBefore time.Time, limit int) ([]models.PaymentIntent, error) {
	filter := bson.M{
		"status": bson.M{"$nin": bson.A{
			models.IntentStatusSucceeded,
			models.IntentStatusCanceled,
			models.IntentStatusFailed,
		}},
		"updated_at": bson.M{"$lt": updatedBefore},
	}
	return s.findMany(ctx, filter, limit)
}

func (s *mongoIntentStore) FindNeedingRemoteCancel(ctx context.Context, limit int) ([]models.PaymentIntent, error) {
	return s.findMany(ctx, bson.M{"needs_remote_cancel": true}, limit)
}

func (s *mongoIntentStore) findMany(ctx context.Context, filter bson.M, limit int) ([]models.PaymentIntent, error) {
	opts := options.Find().SetSort(bson.M{"updated_at": 1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.collection().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("querying payment intents: %w", err)
	}
	defer cursor.Close(ctx)

	var intents []models.PaymentIntent
	if err := cursor.All(ctx, &intents); err != nil {
		return nil, fmt.Errorf("decoding payment intents: %w", err)
	}
	return intents, nil
}
