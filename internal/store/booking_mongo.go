package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iAmShivaySharma/bedspace-sub002/internal/models"
)

const bookingsCollection = "booking_requests"

// mongoBookingStore implements BookingStore on MongoDB.
type mongoBookingStore struct {
	db *mongo.Database
}

// NewMongoBookingStore creates a BookingStore backed by the given database.
func NewMongoBookingStore(db *mongo.Database) BookingStore {
	return &mongoBookingStore{db: db}
}

func (s *mongoBookingStore) collection() *mongo.Collection {
	return s.db.Collection(bookingsCollection)
}

func (s *mongoBookingStore) Insert(ctx context.Context, b *models.BookingRequest) error {
	if b.ID.IsZero() {
		b.ID = primitive.NewObjectID()
	}
	if _, err := s.collection().InsertOne(ctx, b); err != nil {
		return fmt.Errorf("inserting booking %s: %w", b.ID.Hex(), err)
	}
	return nil
}

func (s *mongoBookingStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	if _, err := s.collection().DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("deleting booking %s: %w", id.Hex(), err)
	}
	return nil
}

func (s *mongoBookingStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.BookingRequest, error) {
	var b models.BookingRequest
	err := s.collection().FindOne(ctx, bson.M{"_id": id}).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding booking %s: %w", id.Hex(), err)
	}
	return &b, nil
}

func (s *mongoBookingStore) FindByParty(ctx context.Context, userID primitive.ObjectID, role models.Role, limit int) ([]models.BookingRequest, error) {
	var filter bson.M
	switch role {
	case models.RoleProvider:
		filter = bson.M{"provider_id": userID}
	default:
		filter = bson.M{"seeker_id": userID}
	}

	opts := options.Find().SetSort(bson.M{"created_at": -1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.collection().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("querying bookings for user %s: %w", userID.Hex(), err)
	}
	defer cursor.Close(ctx)

	var bookings []models.BookingRequest
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("decoding bookings for user %s: %w", userID.Hex(), err)
	}
	return bookings, nil
}

// ApplyTransition maps a typed state-machine edge onto a single conditional
// update. The filter carries the expected prior status, so a concurrent
// writer that already moved the record makes this a no-match rather than a
// lost update.
func (s *mongoBookingStore) ApplyTransition(ctx context.Context, id primitive.ObjectID, t models.BookingTransition) (*models.BookingRequest, error) {
	set := bson.M{"status": t.To()}
	switch tr := t.(type) {
	case models.AdvanceToReview:
		set["updated_at"] = tr.At
	case models.Approve:
		set["response_message"] = tr.Message
		set["responded_at"] = tr.At
		set["updated_at"] = tr.At
	case models.Reject:
		set["response_message"] = tr.Message
		set["responded_at"] = tr.At
		set["updated_at"] = tr.At
	case models.Cancel:
		set["cancelled_by"] = tr.By
		set["cancelled_at"] = tr.At
		set["cancellation_reason"] = tr.Reason
		set["updated_at"] = tr.At
	default:
		return nil, fmt.Errorf("unknown booking transition %T", t)
	}

	filter := bson.M{"_id": id, "status": t.From()}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.BookingRequest
	err := s.collection().FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNoMatch
	}
	if err != nil {
		return nil, fmt.Errorf("applying %s -> %s on booking %s: %w", t.From(), t.To(), id.Hex(), err)
	}
	return &updated, nil
}
