package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"wardrobe-backend/internal/logger"
	"wardrobe-backend/internal/metrics"
	"wardrobe-backend/internal/model"
	"wardrobe-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Job announces that a scan moved one of the user's items.
type Job struct {
	UserID   uint
	ItemID   uint
	Location model.Location
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Job
	store   store.Store
	webpush *webpush.Options
	sender  NotificationSender
	log     *logger.Logger
	metrics *metrics.PushMetrics
}

// NewWorkerPool creates a new worker pool. queueSize bounds the number of
// pending jobs; Dispatch drops jobs once it is full.
func NewWorkerPool(size, queueSize int, st store.Store, webpushOptions *webpush.Options, log *logger.Logger, m *metrics.PushMetrics) *WorkerPool {
	if size < 1 {
		size = 1
	}
	if queueSize < size {
		queueSize = size
	}
	if log == nil {
		log = logger.Nop()
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, queueSize),
		store:   st,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		log:     log,
		metrics: m,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log := wp.log.Zerolog(ctx).With().Int("worker", id).Logger()
	log.Debug().Msg("push worker started")
	for {
		select {
		case job := <-wp.jobs:
			wp.sendNotificationsForItem(ctx, job)
		case <-ctx.Done():
			log.Debug().Msg("push worker shutting down")
			return
		}
	}
}

// Dispatch queues a job without blocking and reports whether it was accepted.
func (wp *WorkerPool) Dispatch(job Job) bool {
	select {
	case wp.jobs <- job:
		return true
	default:
		wp.metrics.Inc(metrics.PushDropped)
		return false
	}
}

// NotifyLocationChange lets the pool serve as the scan pipeline's notifier.
func (wp *WorkerPool) NotifyLocationChange(userID, itemID uint, location model.Location) bool {
	return wp.Dispatch(Job{UserID: userID, ItemID: itemID, Location: location})
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Job {
	return wp.jobs
}

// Message renders the notification text for a location change.
func Message(itemName string, location model.Location) string {
	if location == model.LocationBeingWorn {
		return fmt.Sprintf("%s is now being worn", itemName)
	}
	return fmt.Sprintf("%s is back in the wardrobe", itemName)
}

func (wp *WorkerPool) sendNotificationsForItem(ctx context.Context, job Job) {
	ctx = wp.log.WithUserID(ctx, job.UserID)

	subscriptions, err := wp.store.ListPushSubscriptions(ctx, job.UserID)
	if err != nil {
		wp.log.Error(ctx, "fetching push subscriptions", err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	itemLabel := fmt.Sprintf("Item %d", job.ItemID)
	item, err := wp.store.FindUserItem(ctx, job.UserID, job.ItemID)
	if err != nil {
		wp.log.Zerolog(ctx).Warn().Err(err).Uint("item_id", job.ItemID).Msg("fetching item for notification")
	} else if item.Name != "" {
		itemLabel = item.Name
	}

	payload := []byte(Message(itemLabel, job.Location))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.metrics.Inc(metrics.PushFailed)
		wp.log.Zerolog(ctx).Error().Err(err).Str("endpoint", sub.Endpoint).Msg("sending push notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		wp.metrics.Inc(metrics.PushExpired)
		wp.log.Zerolog(ctx).Info().Str("endpoint", sub.Endpoint).Msg("push subscription expired, deleting")
		if err := wp.store.DeletePushSubscription(ctx, sub.UserID, sub.Endpoint); err != nil {
			wp.log.Error(ctx, "deleting expired subscription", err)
		}
		return
	}
	wp.metrics.Inc(metrics.PushSent)
}
