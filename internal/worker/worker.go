// Package worker provides async investigation processing over the event bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-health/harrier/internal/domain"
	"github.com/opensource-health/harrier/internal/investigation"
)

// Worker consumes investigation requests from the EventBus, runs the
// pipeline, and publishes results.
type Worker struct {
	bus    domain.EventBus
	engine *investigation.Engine

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, engine *investigation.Engine) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		engine: engine,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the investigation request topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicInvestigationRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started",
		"topic", domain.TopicInvestigationRequested,
	)
	return nil
}

// RequestMessage is the payload published to request an investigation.
type RequestMessage struct {
	NPI     string `json:"npi"`
	TraceID string `json:"traceId,omitempty"`
}

// CompletedMessage is the payload published when an investigation finishes.
type CompletedMessage struct {
	AnalysisID  string  `json:"analysisId"`
	NPI         string  `json:"npi"`
	Score       int     `json:"score"`
	Priority    string  `json:"priority"`
	DataQuality float64 `json:"dataQuality"`
	TraceID     string  `json:"traceId,omitempty"`
}

// handleMessage runs one requested investigation.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req RequestMessage
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse investigation request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing investigation request",
		"npi", req.NPI,
		"trace_id", traceID,
	)

	out, err := w.engine.Run(ctx, req.NPI)
	if err != nil {
		slog.Error("investigation failed",
			"npi", req.NPI,
			"trace_id", traceID,
			"error", err,
		)
		return err
	}

	completed := CompletedMessage{
		AnalysisID:  out.Analysis.ID,
		NPI:         out.Analysis.NPI,
		Score:       out.Analysis.Score,
		Priority:    out.Analysis.Priority,
		DataQuality: out.Analysis.DataQuality,
		TraceID:     traceID,
	}
	payload, _ := json.Marshal(completed)

	if err := w.bus.Publish(ctx, domain.TopicInvestigationCompleted, payload); err != nil {
		slog.Error("failed to publish completion",
			"npi", req.NPI,
			"error", err,
		)
	}

	if out.Analysis.Priority == domain.PriorityHigh {
		if err := w.bus.Publish(ctx, domain.TopicInvestigationAlert, payload); err != nil {
			slog.Error("failed to publish alert",
				"npi", req.NPI,
				"error", err,
			)
		}
	}

	slog.Info("investigation request processed",
		"npi", req.NPI,
		"analysis_id", out.Analysis.ID,
		"score", out.Analysis.Score,
		"priority", out.Analysis.Priority,
		"trace_id", traceID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

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

	slog.Info("worker stopped")
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
