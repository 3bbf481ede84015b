package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/iAmShivaySharma/bedspace-sub002/internal/config"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/email"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/engine"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/store"
)

// TaskType defines the type of a background task.
const (
	TypePaymentReconcile = "payment:reconcile"
	TypeBookingNotify    = "booking:notify"
)

// ReconcileTaskID dedupes the self-re-enqueueing sweep so restarting the
// worker never stacks a second loop.
const ReconcileTaskID = "payment:reconcile:loop"

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	clientOpt := asynq.RedisClientOpt{
		Addr: rdb.Options().Addr,
		// Add Password, DB if needed from rdb.Options()
	}
	return asynq.NewClient(clientOpt)
}

// NewReconcileTask builds the reconciliation sweep task.
func NewReconcileTask() *asynq.Task {
	return asynq.NewTask(TypePaymentReconcile, nil)
}

// NewBookingNotifyTask builds a notification delivery task for one event.
func NewBookingNotifyTask(e engine.Event) (*asynq.Task, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notify payload: %w", err)
	}
	return asynq.NewTask(TypeBookingNotify, payload), nil
}

// --- Event publisher (engine → task queue) ---

// publisher enqueues a notification task per event. Delivery is decoupled
// from the request path: a Redis hiccup here fails the publish, which the
// engine logs and ignores.
type publisher struct {
	client *asynq.Client
}

// NewEventPublisher returns an engine.EventPublisher backed by the task queue.
func NewEventPublisher(client *asynq.Client) engine.EventPublisher {
	return &publisher{client: client}
}

func (p *publisher) Publish(ctx context.Context, e engine.Event) error {
	task, err := NewBookingNotifyTask(e)
	if err != nil {
		return err
	}
	if _, err := p.client.EnqueueContext(ctx, task, asynq.Queue("low")); err != nil {
		return fmt.Errorf("failed to enqueue %s notification: %w", e.Name, err)
	}
	return nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg         *config.Config
	emailSender email.Sender
	engine      engine.IBookingEngine
	intents     store.PaymentIntentStore
	users       store.UserStore
	taskClient  *asynq.Client
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	eng engine.IBookingEngine,
	intents store.PaymentIntentStore,
	users store.UserStore,
	taskClient *asynq.Client,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:         cfg,
		emailSender: emailSender,
		engine:      eng,
		intents:     intents,
		users:       users,
		taskClient:  taskClient,
	}
}

// SetupServer configures and starts an Asynq server instance. Returns the
// running server so the caller can Shutdown it.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) *asynq.Server {
	serverOpt := asynq.RedisClientOpt{
		Addr: rdb.Options().Addr,
		// Add Password, DB if needed
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypePaymentReconcile, processor.HandlePaymentReconcileTask)
	mux.HandleFunc(TypeBookingNotify, processor.HandleBookingNotifyTask)
	log.Println("Registered background task handlers (reconciliation & notifications).")

	if err := srv.Start(mux); err != nil {
		log.Fatalf("Could not start Asynq server: %v", err)
	}

	return srv
}

// --- Task Handlers ---

// HandlePaymentReconcileTask runs one reconciliation pass and re-enqueues
// itself. Per-intent failures are logged and skipped; every underlying write
// is conditional, so a doubled or crashed pass only delays convergence.
func (p *TaskProcessor) HandlePaymentReconcileTask(ctx context.Context, t *asynq.Task) error {
	cutoff := time.Now().UTC().Add(-p.cfg.ReconcileGracePeriod)

	stale, err := p.intents.FindStale(ctx, cutoff, p.cfg.ReconcileBatchSize)
	if err != nil {
		log.Printf("Error loading stale intents for reconciliation: %v", err)
	} else {
		reconciled := 0
		for _, intent := range stale {
			if err := p.engine.ReconcileIntent(ctx, intent.ID); err != nil {
				log.Printf("Error reconciling intent %s: %v. Skipping.", intent.ID.Hex(), err)
				continue
			}
			reconciled++
		}
		if len(stale) > 0 {
			log.Printf("Reconciliation pass: %d/%d stale intents processed.", reconciled, len(stale))
		}
	}

	pending, err := p.intents.FindNeedingRemoteCancel(ctx, p.cfg.ReconcileBatchSize)
	if err != nil {
		log.Printf("Error loading intents needing remote cancel: %v", err)
	} else {
		for _, intent := range pending {
			if err := p.engine.RetryRemoteCancel(ctx, intent.ID); err != nil {
				log.Printf("Error retrying remote cancel of intent %s: %v. Skipping.", intent.ID.Hex(), err)
			}
		}
	}

	taskInfo, err := p.taskClient.EnqueueContext(ctx, t, asynq.ProcessIn(p.cfg.ReconcileInterval), asynq.Queue("default"))
	if err != nil {
		log.Printf("ERROR failed to re-enqueue reconciliation task: %v", err)
		return err
	}
	log.Printf("Re-enqueued reconciliation task %s to run in %v.", taskInfo.ID, p.cfg.ReconcileInterval)
	return nil
}

// HandleBookingNotifyTask delivers one notification email for a booking
// lifecycle event.
func (p *TaskProcessor) HandleBookingNotifyTask(ctx context.Context, t *asynq.Task) error {
	var event engine.Event
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return fmt.Errorf("failed to unmarshal notify payload: %v: %w", err, asynq.SkipRetry)
	}

	recipientID, subject, body := composeNotification(event)
	if recipientID.IsZero() {
		log.Printf("No recipient for event %s on booking %s. Skipping.", event.Name, event.BookingID.Hex())
		return nil
	}

	recipient, err := p.users.FindByID(ctx, recipientID)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("Recipient %s for event %s no longer exists. Skipping.", recipientID.Hex(), event.Name)
		return fmt.Errorf("recipient not found: %w", asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("failed to load recipient %s: %w", recipientID.Hex(), err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("To: %s\r\n", recipient.Email))
	sb.WriteString(fmt.Sprintf("From: %s\r\n", p.cfg.SmtpFromAddress))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	sb.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	sb.WriteString("\r\n")

	if err := p.emailSender.Send(ctx, []string{recipient.Email}, subject, []byte(sb.String())); err != nil {
		log.Printf("Email delivery for event %s failed (will retry): %v", event.Name, err)
		return err
	}
	return nil
}

// composeNotification maps an event to its recipient and message. The seeker
// hears about provider decisions; the provider hears when a request lands on
// their desk or goes away.
func composeNotification(e engine.Event) (recipient primitive.ObjectID, subject, body string) {
	ref := e.BookingID.Hex()
	switch e.Name {
	case engine.EventBookingCreated:
		return e.SeekerID, "Your booking request was created",
			fmt.Sprintf("Your booking request %s has been created. You will be notified when the provider responds.", ref)
	case engine.EventPaymentSucceeded:
		return e.ProviderID, "New booking request awaiting your review",
			fmt.Sprintf("Booking request %s has been paid (%d minor units) and is awaiting your review.", ref, e.Amount)
	case engine.EventBookingApproved:
		return e.SeekerID, "Your booking request was approved",
			fmt.Sprintf("Good news: your booking request %s was approved by the provider.", ref)
	case engine.EventBookingRejected:
		return e.SeekerID, "Your booking request was declined",
			fmt.Sprintf("Unfortunately your booking request %s was declined by the provider.", ref)
	case engine.EventBookingCancelled:
		return e.ProviderID, "A booking request was cancelled",
			fmt.Sprintf("Booking request %s was cancelled by the seeker.", ref)
	}
	return primitive.NilObjectID, "", ""
}
