package audit

import (
	"context"
	"log/slog"
)

// Emitter is the interface for audit event emission.
type Emitter interface {
	Emit(ctx context.Context, evt *Event) error
	Close() error
}

// Config configures event emission.
type Config struct {
	Enabled  bool
	Dir      string
	Endpoint string
}

// NewEmitter creates an appropriate emitter based on configuration.
// Setup failures degrade to a weaker emitter rather than stopping a run.
func NewEmitter(cfg Config) Emitter {
	logger := slog.With("component", "audit")
	if !cfg.Enabled {
		logger.Debug("disabled, using no-op emitter")
		return noopEmitter{}
	}

	if cfg.Endpoint != "" {
		emitter, err := NewHTTPEmitter(cfg.Endpoint, cfg.Dir)
		if err != nil {
			logger.Warn("failed to create HTTP emitter, falling back to file-only", "error", err)
			return createFileOnlyEmitter(cfg, logger)
		}
		logger.Info("using HTTP emitter", "endpoint", cfg.Endpoint)
		return emitter
	}

	return createFileOnlyEmitter(cfg, logger)
}

func createFileOnlyEmitter(cfg Config, logger *slog.Logger) Emitter {
	emitter, err := NewFileEmitter(cfg.Dir)
	if err != nil {
		logger.Warn("failed to create file emitter, using no-op", "error", err)
		return noopEmitter{}
	}
	logger.Info("using file-only emitter", "dir", cfg.Dir)
	return fileEmitterWrapper{emitter: emitter}
}

// fileEmitterWrapper adapts FileEmitter to the Emitter interface.
type fileEmitterWrapper struct {
	emitter *FileEmitter
}

func (w fileEmitterWrapper) Emit(_ context.Context, evt *Event) error {
	return w.emitter.Emit(evt)
}

func (w fileEmitterWrapper) Close() error {
	return w.emitter.Close()
}

// noopEmitter discards all events.
type noopEmitter struct{}

func (noopEmitter) Emit(_ context.Context, _ *Event) error { return nil }

func (noopEmitter) Close() error { return nil }
