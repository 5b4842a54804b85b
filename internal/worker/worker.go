// Package worker serves assessments requested over the event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/tamweel/internal/assessment"
	"github.com/opensource-finance/tamweel/internal/domain"
)

// Worker answers TopicAssessmentRequested messages with an AssessmentReply.
type Worker struct {
	bus     domain.EventBus
	service *assessment.Service

	mu            sync.Mutex
	subscriptions []domain.Subscription
	sem           chan struct{}
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// Concurrency bounds the number of requests assessed at once.
	Concurrency int
}

// NewWorker creates a new bus worker.
func NewWorker(bus domain.EventBus, service *assessment.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		service: service,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to assessment requests.
func (w *Worker) Start(cfg Config) error {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.sem != nil {
		return fmt.Errorf("worker already started")
	}
	w.sem = make(chan struct{}, cfg.Concurrency)

	sub, err := w.bus.Subscribe(w.ctx, domain.TopicAssessmentRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("assessment worker started",
		"topic", domain.TopicAssessmentRequested,
		"concurrency", cfg.Concurrency,
	)

	return nil
}

// handleMessage hands a request to a bounded goroutine so a slow request
// does not hold up the subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	// Unsubscribing cancels ctx; accepted requests still finish and reply.
	procCtx := context.WithoutCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()
		w.process(procCtx, msg)
	}()
	return nil
}

// process assesses one request and replies when the sender asked for a reply.
func (w *Worker) process(ctx context.Context, msg *domain.Message) {
	start := time.Now()

	reply := w.assess(ctx, msg)
	if reply.Error != "" {
		w.failed.Add(1)
	} else {
		w.processed.Add(1)
	}

	if msg.ReplyTo != "" {
		payload, err := json.Marshal(reply)
		if err != nil {
			slog.Error("failed to marshal reply", "message_id", msg.ID, "error", err)
			return
		}
		if err := w.bus.Reply(ctx, msg, payload); err != nil {
			slog.Error("failed to send reply",
				"message_id", msg.ID,
				"error", err,
			)
		}
	}

	if reply.Assessment != nil {
		slog.Info("assessment processed",
			"message_id", msg.ID,
			"assessment_id", reply.Assessment.ID,
			"classification", reply.Assessment.Result.Classification,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (w *Worker) assess(ctx context.Context, msg *domain.Message) domain.AssessmentReply {
	var req domain.AssessmentRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse assessment request",
			"message_id", msg.ID,
			"error", err,
		)
		return domain.AssessmentReply{Error: fmt.Sprintf("invalid request: %v", err)}
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	a, err := w.service.Assess(ctx, req.Profile, req.Attributes, traceID)
	if err != nil {
		slog.Warn("assessment failed",
			"message_id", msg.ID,
			"trace_id", traceID,
			"error", err,
		)
		return domain.AssessmentReply{Error: err.Error()}
	}

	return domain.AssessmentReply{Assessment: a}
}

// Stop gracefully stops the worker and waits for in-flight requests.
func (w *Worker) Stop() error {
	w.mu.Lock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
	w.mu.Unlock()

	w.wg.Wait()
	w.cancel()

	slog.Info("assessment worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
	}
}
