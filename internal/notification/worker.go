// Package notification pages subscribed browsers when downtime is logged.
// Delivery is best effort: the incident is already committed to the ledger
// before any push leaves this pool.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"factory-floor-backend/internal/model"
)

// Logger is the slice of the application logger this package needs.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Sender sends a single web push message.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the production Sender backed by the webpush library.
type WebPushSender struct{}

func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// alertPayload is the JSON body handed to the service worker on the browser.
type alertPayload struct {
	Title      string `json:"title"`
	Body       string `json:"body"`
	Severity   string `json:"severity"`
	OrderID    int64  `json:"order_id"`
	DowntimeID int64  `json:"downtime_id"`
}

// WorkerPool fans downtime alert jobs out to a fixed set of workers.
type WorkerPool struct {
	size    int
	jobs    chan int64
	db      *gorm.DB
	webpush *webpush.Options
	sender  Sender
	logger  Logger
}

// NewWorkerPool creates a pool of size workers. Jobs carry downtime event IDs.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, logger Logger) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan int64, size),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		logger:  logger,
	}
}

// Start launches the worker goroutines. They exit when ctx is cancelled.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.logger.Info("alert worker %d started", id)
	for {
		select {
		case eventID := <-wp.jobs:
			wp.sendAlertsForEvent(ctx, eventID)
		case <-ctx.Done():
			wp.logger.Info("alert worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues an alert job. The send never blocks the caller: when every
// worker is busy and the buffer is full the alert is dropped and logged, the
// ledger row itself is already safe.
func (wp *WorkerPool) Dispatch(eventID int64) {
	select {
	case wp.jobs <- eventID:
	default:
		wp.logger.Error("alert queue full, dropping alert for downtime %d", eventID)
	}
}

func (wp *WorkerPool) sendAlertsForEvent(ctx context.Context, eventID int64) {
	var event model.DowntimeEvent
	if err := wp.db.WithContext(ctx).First(&event, eventID).Error; err != nil {
		wp.logger.Error("load downtime %d: %v", eventID, err)
		return
	}

	var subscriptions []model.AlertSubscription
	err := wp.db.WithContext(ctx).
		Where("min_severity IN ?", eligibleMinSeverities(event.Severity)).
		Find(&subscriptions).Error
	if err != nil {
		wp.logger.Error("load subscriptions for downtime %d: %v", eventID, err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	orderLabel := fmt.Sprintf("#%d", event.OrderID)
	var order model.Order
	if err := wp.db.WithContext(ctx).
		Select("order_number").
		First(&order, event.OrderID).Error; err != nil {
		wp.logger.Error("load order %d for downtime %d: %v", event.OrderID, eventID, err)
	} else if order.OrderNumber != "" {
		orderLabel = order.OrderNumber
	}

	payload, err := json.Marshal(alertPayload{
		Title:      "Downtime reported",
		Body:       fmt.Sprintf("%s on order %s (%s severity)", event.Reason, orderLabel, event.Severity),
		Severity:   event.Severity,
		OrderID:    event.OrderID,
		DowntimeID: event.ID,
	})
	if err != nil {
		wp.logger.Error("marshal alert for downtime %d: %v", eventID, err)
		return
	}

	wp.logger.Info("paging %d subscribers for downtime %d", len(subscriptions), eventID)
	for _, sub := range subscriptions {
		wp.push(ctx, sub, payload)
	}
}

func (wp *WorkerPool) push(ctx context.Context, sub model.AlertSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.logger.Error("push to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// The push service answers 404 or 410 once the browser has dropped the
	// subscription; keeping the row would page a dead endpoint forever.
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		wp.logger.Info("subscription %s expired, deleting", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			wp.logger.Error("delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}

// eligibleMinSeverities lists the threshold values that an incident of the
// given severity satisfies, in the fixed low-to-critical order.
func eligibleMinSeverities(severity string) []string {
	rank := model.SeverityRank(severity)
	var mins []string
	for _, s := range model.DowntimeSeverities {
		if model.SeverityRank(s) <= rank {
			mins = append(mins, s)
		}
	}
	return mins
}
