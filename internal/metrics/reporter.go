package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/robfig/cron/v3"
)

// Reporter periodically logs a registry snapshot on a cron schedule
// ("@every 1m" by default).
type Reporter struct {
	registry *Registry
	spec     string
	logger   *slog.Logger
}

func NewReporter(registry *Registry, spec string, logger *slog.Logger) *Reporter {
	if strings.TrimSpace(spec) == "" {
		spec = "@every 1m"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{registry: registry, spec: spec, logger: logger}
}

func (r *Reporter) Start(ctx context.Context) error {
	if r.registry == nil {
		<-ctx.Done()
		return nil
	}

	runner := cron.New()
	_, err := runner.AddFunc(r.spec, func() {
		snapshot := r.registry.Snapshot()
		attrs := make([]any, 0, len(snapshot)*2)
		for name, value := range snapshot {
			attrs = append(attrs, name, value)
		}
		r.logger.Info("pipeline metrics", attrs...)
	})
	if err != nil {
		return fmt.Errorf("schedule metrics report: %w", err)
	}

	runner.Start()
	<-ctx.Done()
	stopCtx := runner.Stop()
	<-stopCtx.Done()
	return nil
}
