package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pulsebot/pulse/internal/llm"
	"github.com/pulsebot/pulse/internal/metrics"
)

// Output mirrors what the caller delivers: Handled false means the
// message was discarded (empty content) and no reply is owed.
type Output struct {
	Reply   string
	Handled bool
}

type Config struct {
	Completer llm.Completer
	Endpoints Endpoints
	Lookup    LookupConfig
	Metrics   *metrics.Registry
	Logger    *slog.Logger
}

// Pipeline is the linear message flow: classify, extract, look up,
// format. Each stage carries its own fallback, so Respond never fails
// and never takes the listener loop down with it.
type Pipeline struct {
	classifier *Classifier
	extractor  *Extractor
	lookup     *LookupClient
	registry   *Registry
	metrics    *metrics.Registry
	logger     *slog.Logger
}

func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := NewRegistry(cfg.Endpoints)
	return &Pipeline{
		classifier: NewClassifier(cfg.Completer, registry, cfg.Metrics, logger.With("stage", "classifier")),
		extractor:  NewExtractor(cfg.Completer, cfg.Metrics, logger.With("stage", "extractor")),
		lookup:     NewLookupClient(registry, cfg.Lookup, cfg.Metrics, logger.With("stage", "lookup")),
		registry:   registry,
		metrics:    cfg.Metrics,
		logger:     logger,
	}
}

func (p *Pipeline) Respond(ctx context.Context, text string) (output Output) {
	// Every stage converts its own failures into a fallback value, so a
	// panic here means a bug; the reply still has to go out.
	defer func() {
		if recovered := recover(); recovered != nil {
			p.logger.Error("pipeline panicked", "panic", recovered)
			output = Output{Reply: errorEnvelope("Failed to process request"), Handled: true}
		}
	}()

	text = strings.TrimSpace(text)
	if text == "" {
		return Output{}
	}

	action := p.classifier.Classify(ctx, text)
	parameter := p.extractor.Extract(ctx, text)
	result := p.lookup.Lookup(ctx, action, parameter)

	reply, recovered := p.registry.Format(result)
	if recovered {
		if p.metrics != nil {
			p.metrics.FormatterRecovery()
		}
		p.logger.Warn("formatter recovered from malformed payload", "action", string(result.Action), "parameter", result.Parameter)
	}
	return Output{Reply: reply, Handled: true}
}
