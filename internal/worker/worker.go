// Package worker consumes recalculation requests from the EventBus and
// runs the scoring pipeline for each one.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/openclinic/arpa/internal/arpa"
	"github.com/openclinic/arpa/internal/domain"
)

// Worker processes recalculation requests asynchronously.
// Schedulers and upstream record services publish to the recalculate
// topic; the worker calculates a fresh score per request.
type Worker struct {
	bus    domain.EventBus
	engine *arpa.Engine

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new recalculation worker.
func NewWorker(bus domain.EventBus, engine *arpa.Engine) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		engine: engine,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the recalculate topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicRecalculate, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("recalculation worker started", "topic", domain.TopicRecalculate)
	return nil
}

// RecalculateMessage is the payload for a recalculation request.
type RecalculateMessage struct {
	PatientID   string  `json:"patientId"`
	RequestedBy *string `json:"requestedBy,omitempty"`
	Reason      string  `json:"reason,omitempty"`
}

// handleMessage calculates a fresh score for one request. Unknown
// patients are logged and dropped rather than retried; stale requests
// are expected when records are purged upstream.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req RecalculateMessage
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse recalculation message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if req.PatientID == "" {
		slog.Warn("recalculation message without patient id", "message_id", msg.ID)
		return nil
	}

	slog.Debug("processing recalculation",
		"patient_id", req.PatientID,
		"reason", req.Reason,
	)

	score, err := w.engine.Calculate(ctx, req.PatientID, req.RequestedBy)
	if err != nil {
		slog.Error("recalculation failed",
			"patient_id", req.PatientID,
			"error", err,
		)
		return err
	}

	slog.Info("recalculation processed",
		"patient_id", req.PatientID,
		"score_id", score.ID,
		"score", score.Score,
		"risk_level", score.RiskLevel,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("recalculation worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
