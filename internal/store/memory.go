package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/iAmShivaySharma/bedspace-sub002/internal/models"
)

// Memory is an in-memory implementation of all three stores with the same
// compare-and-swap contract as the Mongo implementations. It backs the
// engine's unit tests and is safe for concurrent use, so races between
// writers behave like they do against the real database.
type Memory struct {
	mu       sync.Mutex
	bookings map[primitive.ObjectID]models.BookingRequest
	intents  map[primitive.ObjectID]models.PaymentIntent
	listings map[primitive.ObjectID]models.Listing
	users    map[primitive.ObjectID]models.User
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		bookings: make(map[primitive.ObjectID]models.BookingRequest),
		intents:  make(map[primitive.ObjectID]models.PaymentIntent),
		listings: make(map[primitive.ObjectID]models.Listing),
		users:    make(map[primitive.ObjectID]models.User),
	}
}

// Bookings returns the BookingStore view.
func (m *Memory) Bookings() BookingStore { return (*memoryBookings)(m) }

// Intents returns the PaymentIntentStore view.
func (m *Memory) Intents() PaymentIntentStore { return (*memoryIntents)(m) }

// Listings returns the ListingStore view.
func (m *Memory) Listings() ListingStore { return (*memoryListings)(m) }

// Users returns the UserStore view.
func (m *Memory) Users() UserStore { return (*memoryUsers)(m) }

type memoryBookings Memory

func (s *memoryBookings) Insert(ctx context.Context, b *models.BookingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID.IsZero() {
		b.ID = primitive.NewObjectID()
	}
	s.bookings[b.ID] = *b
	return nil
}

func (s *memoryBookings) Delete(ctx context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bookings, id)
	return nil
}

func (s *memoryBookings) FindByID(ctx context.Context, id primitive.ObjectID) (*models.BookingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (s *memoryBookings) FindByParty(ctx context.Context, userID primitive.ObjectID, role models.Role, limit int) ([]models.BookingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.BookingRequest
	for _, b := range s.bookings {
		if role == models.RoleProvider && b.ProviderID == userID {
			out = append(out, b)
		} else if role != models.RoleProvider && b.SeekerID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryBookings) ApplyTransition(ctx context.Context, id primitive.ObjectID, t models.BookingTransition) (*models.BookingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.Status != t.From() {
		return nil, ErrNoMatch
	}
	b.Status = t.To()
	switch tr := t.(type) {
	case models.AdvanceToReview:
		b.UpdatedAt = tr.At
	case models.Approve:
		b.ResponseMessage = tr.Message
		at := tr.At
		b.RespondedAt = &at
		b.UpdatedAt = tr.At
	case models.Reject:
		b.ResponseMessage = tr.Message
		at := tr.At
		b.RespondedAt = &at
		b.UpdatedAt = tr.At
	case models.Cancel:
		by := tr.By
		at := tr.At
		b.CancelledBy = &by
		b.CancelledAt = &at
		b.CancellationReason = tr.Reason
		b.UpdatedAt = tr.At
	}
	s.bookings[id] = b
	return &b, nil
}

type memoryIntents Memory

func (s *memoryIntents) Insert(ctx context.Context, pi *models.PaymentIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pi.ID.IsZero() {
		pi.ID = primitive.NewObjectID()
	}
	s.intents[pi.ID] = *pi
	return nil
}

func (s *memoryIntents) Delete(ctx context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.intents, id)
	return nil
}

func (s *memoryIntents) FindByID(ctx context.Context, id primitive.ObjectID) (*models.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pi, ok := s.intents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &pi, nil
}

func (s *memoryIntents) FindByBookingAndGatewayID(ctx context.Context, bookingID primitive.ObjectID, gatewayIntentID string) (*models.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pi := range s.intents {
		if pi.BookingID == bookingID && pi.GatewayIntentID == gatewayIntentID {
			return &pi, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryIntents) FindActiveByBooking(ctx context.Context, bookingID primitive.ObjectID) (*models.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pi := range s.intents {
		if pi.BookingID == bookingID && pi.Status.Active() {
			return &pi, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryIntents) UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to models.IntentStatus) (*models.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pi, ok := s.intents[id]
	if !ok || pi.Status != from {
		return nil, ErrNoMatch
	}
	pi.Status = to
	pi.UpdatedAt = time.Now().UTC()
	s.intents[id] = pi
	return &pi, nil
}

func (s *memoryIntents) SetNeedsRemoteCancel(ctx context.Context, id primitive.ObjectID, needs bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pi, ok := s.intents[id]
	if !ok {
		return ErrNotFound
	}
	pi.NeedsRemoteCancel = needs
	pi.UpdatedAt = time.Now().UTC()
	s.intents[id] = pi
	return nil
}

func (s *memoryIntents) FindStale(ctx context.Context, updatedBefore time.Time, limit int) ([]models.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PaymentIntent
	for _, pi := range s.intents {
		if !pi.Status.Terminal() && pi.UpdatedAt.Before(updatedBefore) {
			out = append(out, pi)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryIntents) FindNeedingRemoteCancel(ctx context.Context, limit int) ([]models.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PaymentIntent
	for _, pi := range s.intents {
		if pi.NeedsRemoteCancel {
			out = append(out, pi)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memoryListings Memory

func (s *memoryListings) Insert(ctx context.Context, l *models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID.IsZero() {
		l.ID = primitive.NewObjectID()
	}
	s.listings[l.ID] = *l
	return nil
}

func (s *memoryListings) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}

type memoryUsers Memory

func (s *memoryUsers) Insert(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	s.users[u.ID] = *u
	return nil
}

func (s *memoryUsers) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.Deleted {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *memoryUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email && !u.Deleted {
			copied := u
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}
