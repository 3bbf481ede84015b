package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/iAmShivaySharma/bedspace-sub002/internal/gateway"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/models"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/store"
)

// fakeGateway is an in-memory gateway double. Statuses are set by tests to
// simulate what the real gateway would report.
type fakeGateway struct {
	mu          sync.Mutex
	statuses    map[string]models.IntentStatus
	nextID      int
	createErr   error
	getErr      error
	cancelErr   error
	getCalls    int
	cancelCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{statuses: make(map[string]models.IntentStatus)}
}

func (g *fakeGateway) CreateIntent(ctx context.Context, amountMinor int64, currencyCode string, metadata map[string]string) (*gateway.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.nextID++
	id := fmt.Sprintf("pi_test_%03d", g.nextID)
	g.statuses[id] = models.IntentStatusRequiresPaymentMethod
	return &gateway.Intent{
		GatewayIntentID: id,
		Status:          models.IntentStatusRequiresPaymentMethod,
		ClientSecret:    id + "_secret",
	}, nil
}

func (g *fakeGateway) GetIntentStatus(ctx context.Context, gatewayIntentID string) (models.IntentStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getCalls++
	if g.getErr != nil {
		return "", g.getErr
	}
	status, ok := g.statuses[gatewayIntentID]
	if !ok {
		return "", gateway.ErrIntentNotFound
	}
	return status, nil
}

func (g *fakeGateway) CancelIntent(ctx context.Context, gatewayIntentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelCalls++
	if g.cancelErr != nil {
		return g.cancelErr
	}
	if _, ok := g.statuses[gatewayIntentID]; !ok {
		return gateway.ErrIntentNotFound
	}
	g.statuses[gatewayIntentID] = models.IntentStatusCanceled
	return nil
}

func (g *fakeGateway) setStatus(id string, s models.IntentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[id] = s
}

// recordingPublisher captures published events in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Name)
	}
	return out
}

func (p *recordingPublisher) count(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Name == name {
			n++
		}
	}
	return n
}

type fixture struct {
	engine   IBookingEngine
	mem      *store.Memory
	gw       *fakeGateway
	pub      *recordingPublisher
	seeker   models.Actor
	provider models.Actor
	listing  *models.Listing
}

func newFixture(t *testing.T, upfront bool) *fixture {
	t.Helper()
	mem := store.NewMemory()
	gw := newFakeGateway()
	pub := &recordingPublisher{}

	seeker := models.Actor{ID: primitive.NewObjectID(), Role: models.RoleSeeker}
	provider := models.Actor{ID: primitive.NewObjectID(), Role: models.RoleProvider}

	listing := &models.Listing{
		ProviderID:             provider.ID,
		Title:                  "Sunny room near the station",
		RentAmount:             15000,
		CurrencyCode:           "usd",
		RequiresUpfrontPayment: upfront,
		IsActive:               true,
		IsApproved:             true,
	}
	require.NoError(t, mem.Listings().Insert(context.Background(), listing))

	return &fixture{
		engine:   NewBookingEngine(mem.Bookings(), mem.Intents(), mem.Listings(), gw, pub),
		mem:      mem,
		gw:       gw,
		pub:      pub,
		seeker:   seeker,
		provider: provider,
		listing:  listing,
	}
}

// createPaid creates a booking and walks its intent to succeeded and the
// booking to pending_review.
func (f *fixture) createPaid(t *testing.T) *ConfirmResult {
	t.Helper()
	ctx := context.Background()
	created, err := f.engine.Create(ctx, f.seeker, f.listing.ID, "hi")
	require.NoError(t, err)
	require.NotNil(t, created.Intent)
	f.gw.setStatus(created.Intent.GatewayIntentID, models.IntentStatusSucceeded)
	confirmed, err := f.engine.ConfirmPayment(ctx, f.seeker, created.Booking.ID, created.Intent.GatewayIntentID)
	require.NoError(t, err)
	return confirmed
}

func TestCreate_UpfrontPaymentOpensIntent(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	result, err := f.engine.Create(ctx, f.seeker, f.listing.ID, "I would like the room")
	require.NoError(t, err)

	assert.Equal(t, models.BookingStatusAwaitingPayment, result.Booking.Status)
	assert.Equal(t, f.seeker.ID, result.Booking.SeekerID)
	assert.Equal(t, f.provider.ID, result.Booking.ProviderID)
	assert.Equal(t, "I would like the room", result.Booking.RequestMessage)

	require.NotNil(t, result.Intent)
	assert.Equal(t, int64(15000), result.Intent.Amount)
	assert.Equal(t, "usd", result.Intent.CurrencyCode)
	assert.Equal(t, models.IntentStatusRequiresPaymentMethod, result.Intent.Status)
	assert.NotEmpty(t, result.Intent.ClientSecret)

	assert.Equal(t, []string{EventBookingCreated}, f.pub.names())
}

func TestCreate_NoUpfrontPaymentGoesStraightToReview(t *testing.T) {
	f := newFixture(t, false)

	result, err := f.engine.Create(context.Background(), f.seeker, f.listing.ID, "")
	require.NoError(t, err)

	assert.Equal(t, models.BookingStatusPendingReview, result.Booking.Status)
	assert.Nil(t, result.Intent)
}

func TestCreate_Rejections(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.engine.Create(ctx, f.seeker, primitive.NewObjectID(), "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.engine.Create(ctx, f.provider, f.listing.ID, "")
	assert.ErrorIs(t, err, ErrForbidden)

	ownListing := &models.Listing{
		ProviderID: f.seeker.ID,
		RentAmount: 5000, CurrencyCode: "usd",
		IsActive: true, IsApproved: true,
	}
	require.NoError(t, f.mem.Listings().Insert(ctx, ownListing))
	_, err = f.engine.Create(ctx, f.seeker, ownListing.ID, "")
	assert.ErrorIs(t, err, ErrForbidden)

	inactive := &models.Listing{
		ProviderID: f.provider.ID,
		RentAmount: 5000, CurrencyCode: "usd",
		IsActive: false, IsApproved: true,
	}
	require.NoError(t, f.mem.Listings().Insert(ctx, inactive))
	_, err = f.engine.Create(ctx, f.seeker, inactive.ID, "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCreate_GatewayDownLeavesNothingBehind(t *testing.T) {
	f := newFixture(t, true)
	f.gw.createErr = gateway.ErrUnavailable

	_, err := f.engine.Create(context.Background(), f.seeker, f.listing.ID, "")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)

	bookings, err := f.mem.Bookings().FindByParty(context.Background(), f.seeker.ID, models.RoleSeeker, 0)
	require.NoError(t, err)
	assert.Empty(t, bookings, "rolled-back booking must not remain")
	assert.Empty(t, f.pub.names())
}

func TestConfirmPayment_SucceededAdvancesBooking(t *testing.T) {
	f := newFixture(t, true)

	confirmed := f.createPaid(t)

	assert.Equal(t, models.BookingStatusPendingReview, confirmed.Booking.Status)
	assert.Equal(t, models.IntentStatusSucceeded, confirmed.Intent.Status)
	assert.Equal(t, []string{EventBookingCreated, EventPaymentSucceeded}, f.pub.names())

	succeeded := f.pub.events[len(f.pub.events)-1]
	assert.Equal(t, int64(15000), succeeded.Amount)
}

func TestConfirmPayment_Idempotent(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	confirmed := f.createPaid(t)

	for i := 0; i < 3; i++ {
		again, err := f.engine.ConfirmPayment(ctx, f.seeker, confirmed.Booking.ID, confirmed.Intent.GatewayIntentID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusPendingReview, again.Booking.Status)
		assert.Equal(t, models.IntentStatusSucceeded, again.Intent.Status)
	}

	assert.Equal(t, 1, f.pub.count(EventPaymentSucceeded), "payment.succeeded must fire on the advancing call only")
}

func TestConfirmPayment_NotSucceededDoesNotAdvance(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	created, err := f.engine.Create(ctx, f.seeker, f.listing.ID, "")
	require.NoError(t, err)

	// Still unpaid on the gateway side
	result, err := f.engine.ConfirmPayment(ctx, f.seeker, created.Booking.ID, created.Intent.GatewayIntentID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusAwaitingPayment, result.Booking.Status)

	// Payment attempt failed: booking stays put for a retry with a fresh intent
	f.gw.setStatus(created.Intent.GatewayIntentID, models.IntentStatusFailed)
	result, err = f.engine.ConfirmPayment(ctx, f.seeker, created.Booking.ID, created.Intent.GatewayIntentID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusAwaitingPayment, result.Booking.Status)
	assert.Equal(t, models.IntentStatusFailed, result.Intent.Status)
	assert.Zero(t, f.pub.count(EventPaymentSucceeded))
}

func TestConfirmPayment_Rejections(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	created, err := f.engine.Create(ctx, f.seeker, f.listing.ID, "")
	require.NoError(t, err)

	stranger := models.Actor{ID: primitive.NewObjectID(), Role: models.RoleSeeker}
	_, err = f.engine.ConfirmPayment(ctx, stranger, created.Booking.ID, created.Intent.GatewayIntentID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.engine.ConfirmPayment(ctx, f.seeker, created.Booking.ID, "pi_unknown")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.engine.ConfirmPayment(ctx, f.seeker, primitive.NewObjectID(), created.Intent.GatewayIntentID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConfirmPayment_GatewayUnavailableLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	created, err := f.engine.Create(ctx, f.seeker, f.listing.ID, "")
	require.NoError(t, err)

	f.gw.getErr = gateway.ErrUnavailable
	_, err = f.engine.ConfirmPayment(ctx, f.seeker, created.Booking.ID, created.Intent.GatewayIntentID)
	assert.ErrorIs(t, err, ErrGatewayUnavailable)

	intent, err := f.mem.Intents().FindByID(ctx, created.Intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusRequiresPaymentMethod, intent.Status)
}

func TestRespond_ApproveAndReject(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	confirmed := f.createPaid(t)

	booking, err := f.engine.Respond(ctx, f.provider, confirmed.Booking.ID, true, "Welcome!")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusApproved, booking.Status)
	assert.Equal(t, "Welcome!", booking.ResponseMessage)
	require.NotNil(t, booking.RespondedAt)
	assert.Equal(t, 1, f.pub.count(EventBookingApproved))

	// Terminal: no further transition of any kind
	_, err = f.engine.Respond(ctx, f.provider, booking.ID, false, "changed my mind")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.engine.Cancel(ctx, f.seeker, booking.ID, "")
	assert.ErrorIs(t, err, ErrInvalidState)

	second := f.createPaid(t)
	rejected, err := f.engine.Respond(ctx, f.provider, second.Booking.ID, false, "Room is taken")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusRejected, rejected.Status)
	assert.Equal(t, 1, f.pub.count(EventBookingRejected))
}

func TestRespond_Rejections(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	created, err := f.engine.Create(ctx, f.seeker, f.listing.ID, "")
	require.NoError(t, err)

	// Unpaid booking is not in front of the provider yet
	_, err = f.engine.Respond(ctx, f.provider, created.Booking.ID, true, "")
	assert.ErrorIs(t, err, ErrInvalidState)

	confirmed := f.createPaid(t)
	otherProvider := models.Actor{ID: primitive.NewObjectID(), Role: models.RoleProvider}
	_, err = f.engine.Respond(ctx, otherProvider, confirmed.Booking.ID, true, "")
	assert.ErrorIs(t, err, ErrForbidden)

	// The seeker is not the provider, even on their own booking
	_, err = f.engine.Respond(ctx, f.seeker, confirmed.Booking.ID, true, "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRespond_ConcurrentOneWinnerOneConflict(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	confirmed := f.createPaid(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = f.engine.Respond(ctx, f.provider, confirmed.Booking.ID, true, "approve")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = f.engine.Respond(ctx, f.provider, confirmed.Booking.ID, false, "reject")
	}()
	wg.Wait()

	var wins, conflicts, invalid int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrConflict):
			conflicts++
		case errors.Is(err, ErrInvalidState):
			// The loser read the post-image before writing
			invalid++
		}
	}
	assert.Equal(t, 1, wins, "exactly one responder must win")
	assert.Equal(t, 1, conflicts+invalid, "the loser must be told, never silently overwritten")

	booking, err := f.mem.Bookings().FindByID(ctx, confirmed.Booking.ID)
	require.NoError(t, err)
	assert.True(t, booking.Status.Terminal())
}

func TestCancel_FromBothLegalStates(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	// From awaiting_payment, with an active intent to clean up
	created, err := f.engine.Create(ctx, f.seeker, f.listing.ID, "")
	require.NoError(t, err)
	cancelled, err := f.engine.Cancel(ctx, f.seeker, created.Booking.ID, "found another room")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, f.seeker.ID, *cancelled.CancelledBy)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, "found another room", cancelled.CancellationReason)

	intent, err := f.mem.Intents().FindByID(ctx, created.Intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusCanceled, intent.Status)
	assert.False(t, intent.NeedsRemoteCancel)

	// From pending_review
	confirmed := f.createPaid(t)
	cancelled, err = f.engine.Cancel(ctx, f.seeker, confirmed.Booking.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)

	assert.Equal(t, 2, f.pub.count(EventBookingCancelled))
}

func TestCancel_Rejections(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	created, err := f.engine.Create(ctx, f.seeker, f.listing.ID, "")
	require.NoError(t, err)

	_, err = f.engine.Cancel(ctx, f.provider, created.Booking.ID, "")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.engine.Cancel(ctx, f.seeker, primitive.NewObjectID(), "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.engine.Cancel(ctx, f.seeker, created.Booking.ID, "")
	require.NoError(t, err)
	_, err = f.engine.Cancel(ctx, f.seeker, created.Booking.ID, "again")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCancel_RemoteCancelFailureDoesNotBlock(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	created, err := f.engine.Create(ctx, f.seeker, f.listing.ID, "")
	require.NoError(t, err)

	f.gw.cancelErr = gateway.ErrUnavailable
	cancelled, err := f.engine.Cancel(ctx, f.seeker, created.Booking.ID, "")
	require.NoError(t, err, "local cancellation must not depend on the gateway")
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)

	intent, err := f.mem.Intents().FindByID(ctx, created.Intent.ID)
	require.NoError(t, err)
	assert.True(t, intent.NeedsRemoteCancel, "failed remote cancel stays flagged for the sweep")
	assert.NotEqual(t, models.IntentStatusCanceled, intent.Status)

	// The sweep retries once the gateway is back
	f.gw.cancelErr = nil
	require.NoError(t, f.engine.RetryRemoteCancel(ctx, intent.ID))
	intent, err = f.mem.Intents().FindByID(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusCanceled, intent.Status)
	assert.False(t, intent.NeedsRemoteCancel)
}

func TestReconcileIntent_StuckProcessingResolvesToFailed(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	created, err := f.engine.Create(ctx, f.seeker, f.listing.ID, "")
	require.NoError(t, err)

	// Gateway moved through processing to failed while nobody was looking
	f.gw.setStatus(created.Intent.GatewayIntentID, models.IntentStatusFailed)
	require.NoError(t, f.engine.ReconcileIntent(ctx, created.Intent.ID))

	intent, err := f.mem.Intents().FindByID(ctx, created.Intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusFailed, intent.Status)

	booking, err := f.mem.Bookings().FindByID(ctx, created.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusAwaitingPayment, booking.Status, "a failed payment must not advance the booking")
}

func TestReconcileIntent_SucceededAdvancesThroughSharedPath(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	created, err := f.engine.Create(ctx, f.seeker, f.listing.ID, "")
	require.NoError(t, err)

	f.gw.setStatus(created.Intent.GatewayIntentID, models.IntentStatusSucceeded)
	require.NoError(t, f.engine.ReconcileIntent(ctx, created.Intent.ID))

	booking, err := f.mem.Bookings().FindByID(ctx, created.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPendingReview, booking.Status)
	assert.Equal(t, 1, f.pub.count(EventPaymentSucceeded))

	// Terminal intent: second pass is a pure no-op, no gateway read
	before := f.gw.getCalls
	require.NoError(t, f.engine.ReconcileIntent(ctx, created.Intent.ID))
	assert.Equal(t, before, f.gw.getCalls)
	assert.Equal(t, 1, f.pub.count(EventPaymentSucceeded))
}

func TestGetAndListBookings(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	created, err := f.engine.Create(ctx, f.seeker, f.listing.ID, "")
	require.NoError(t, err)

	got, err := f.engine.GetBooking(ctx, f.seeker, created.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Booking.ID, got.ID)

	// The provider is a party too
	_, err = f.engine.GetBooking(ctx, f.provider, created.Booking.ID)
	require.NoError(t, err)

	stranger := models.Actor{ID: primitive.NewObjectID(), Role: models.RoleSeeker}
	_, err = f.engine.GetBooking(ctx, stranger, created.Booking.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	mine, err := f.engine.ListBookings(ctx, f.seeker, 10)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := f.engine.ListBookings(ctx, f.provider, 10)
	require.NoError(t, err)
	assert.Len(t, theirs, 1)

	none, err := f.engine.ListBookings(ctx, stranger, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

// End to end: the full happy path for a 15000 minor unit listing.
func TestBookingLifecycle_EndToEnd(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	created, err := f.engine.Create(ctx, f.seeker, f.listing.ID, "Is the room still free?")
	require.NoError(t, err)
	require.NotNil(t, created.Intent)
	assert.Equal(t, int64(15000), created.Intent.Amount)
	assert.Equal(t, models.BookingStatusAwaitingPayment, created.Booking.Status)

	// Premature confirm: gateway still reports unpaid, nothing moves
	mid, err := f.engine.ConfirmPayment(ctx, f.seeker, created.Booking.ID, created.Intent.GatewayIntentID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusAwaitingPayment, mid.Booking.Status)

	// Seeker pays; confirm advances
	f.gw.setStatus(created.Intent.GatewayIntentID, models.IntentStatusSucceeded)
	confirmed, err := f.engine.ConfirmPayment(ctx, f.seeker, created.Booking.ID, created.Intent.GatewayIntentID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPendingReview, confirmed.Booking.Status)

	// Provider approves
	approved, err := f.engine.Respond(ctx, f.provider, created.Booking.ID, true, "See you on the 1st")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusApproved, approved.Status)

	assert.Equal(t, []string{EventBookingCreated, EventPaymentSucceeded, EventBookingApproved}, f.pub.names())
}
