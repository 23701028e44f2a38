package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// HTTPEmitter posts events to an endpoint. Every event is written to the
// local log first, so the file remains the complete record.
type HTTPEmitter struct {
	endpoint     string
	client       *http.Client
	chainTracker *ChainTracker
	log          *FileLog
	retries      int
	delay        time.Duration
	logger       *slog.Logger
}

// NewHTTPEmitter creates a new HTTP emitter backed up to dir.
func NewHTTPEmitter(endpoint, dir string) (*HTTPEmitter, error) {
	chainTracker, err := NewChainTracker(dir)
	if err != nil {
		return nil, fmt.Errorf("create chain tracker: %w", err)
	}
	log, err := NewFileLog(dir)
	if err != nil {
		return nil, fmt.Errorf("create file backup: %w", err)
	}

	return &HTTPEmitter{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		chainTracker: chainTracker,
		log:          log,
		retries:      3,
		delay:        time.Second,
		logger:       slog.With("component", "audit"),
	}, nil
}

// Emit links the event into its job's chain, logs it locally, then posts
// it. The chain advances as soon as the event is logged, so a failed POST
// leaves a gap on the endpoint but never in the local log.
func (e *HTTPEmitter) Emit(ctx context.Context, evt *Event) error {
	stamp(evt)
	evt.SetChainHashes(e.chainTracker.Head(evt.ChainKey()))

	if err := e.log.Append(evt); err != nil {
		return fmt.Errorf("audit log: %w", err)
	}
	if err := e.chainTracker.Advance(evt.ChainKey(), evt.Chain.EventHash); err != nil {
		e.logger.Warn("failed to update chain head", "error", err)
	}

	if err := e.postWithRetry(ctx, evt); err != nil {
		return fmt.Errorf("audit emit failed: %w", err)
	}
	return nil
}

func (e *HTTPEmitter) postWithRetry(ctx context.Context, evt *Event) error {
	var lastErr error
	delay := e.delay

	for attempt := 1; attempt <= e.retries; attempt++ {
		err := e.post(ctx, evt)
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt < e.retries {
			e.logger.Warn("audit post failed, retrying",
				"attempt", attempt, "retries", e.retries, "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", e.retries, lastErr)
}

func (e *HTTPEmitter) post(ctx context.Context, evt *Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))
}

// Close releases resources.
func (e *HTTPEmitter) Close() error {
	return nil
}
