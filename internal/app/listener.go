package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pulsebot/pulse/internal/connectors"
)

// Listener supervises the messaging connector so the HTTP API can
// start and stop it independently of the process. The HTTP server and
// the conversation API stay up while the listener is stopped.
type Listener struct {
	connector connectors.Connector
	logger    *slog.Logger

	mu     sync.Mutex
	parent context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewListener(connector connectors.Connector, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{connector: connector, logger: logger}
}

// Bind sets the parent context every listener session derives from.
// Cancelling it stops any running session for good.
func (l *Listener) Bind(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.parent = ctx
}

// Start launches a connector session. Returns false if one is already
// running.
func (l *Listener) Start() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.runningLocked() {
		return false
	}
	parent := l.parent
	if parent == nil {
		parent = context.Background()
	}
	if parent.Err() != nil {
		return false
	}

	sessionCtx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done

	go func() {
		defer close(done)
		if err := l.connector.Start(sessionCtx); err != nil {
			l.logger.Error("listener session ended with error", "connector", l.connector.Name(), "error", err)
		}
	}()
	l.logger.Info("listener session started", "connector", l.connector.Name())
	return true
}

// Stop cancels the running session and waits for it to wind down.
// Returns false if nothing was running.
func (l *Listener) Stop() bool {
	l.mu.Lock()
	if !l.runningLocked() {
		l.mu.Unlock()
		return false
	}
	cancel := l.cancel
	done := l.done
	l.cancel = nil
	l.mu.Unlock()

	// A nil cancel means another Stop already cancelled the session and
	// is waiting for it to exit. Wait alongside it.
	if cancel != nil {
		cancel()
	}
	<-done
	l.logger.Info("listener session stopped", "connector", l.connector.Name())
	return true
}

func (l *Listener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runningLocked()
}

func (l *Listener) runningLocked() bool {
	if l.done == nil {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}
