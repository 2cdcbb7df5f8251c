package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pulsebot/pulse/internal/config"
	"github.com/pulsebot/pulse/internal/connectors/meshwire"
	"github.com/pulsebot/pulse/internal/httpapi"
	"github.com/pulsebot/pulse/internal/llm"
	"github.com/pulsebot/pulse/internal/llm/anthropic"
	"github.com/pulsebot/pulse/internal/llm/openai"
	"github.com/pulsebot/pulse/internal/metrics"
	"github.com/pulsebot/pulse/internal/pipeline"
	"github.com/pulsebot/pulse/internal/store"
)

type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	store      *store.Store
	pipeline   *pipeline.Pipeline
	connector  *meshwire.Connector
	listener   *Listener
	registry   *metrics.Registry
	reporter   *metrics.Reporter
	httpServer *http.Server
}

func New(cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	sqlStore, err := store.New(cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		sqlStore.Close()
		return nil, err
	}

	completer, err := newCompleter(cfg, logger)
	if err != nil {
		sqlStore.Close()
		return nil, err
	}

	registry := metrics.NewRegistry()
	pipe := pipeline.New(pipeline.Config{
		Completer: completer,
		Endpoints: pipeline.Endpoints{
			Profile:   cfg.ProfileEndpoint,
			Posts:     cfg.PostsEndpoint,
			Followers: cfg.FollowersEndpoint,
		},
		Lookup: pipeline.LookupConfig{
			Timeout:       time.Duration(cfg.LookupTimeoutSec) * time.Second,
			TLSSkipVerify: cfg.LookupTLSSkipVerify,
			UserAgent:     cfg.LookupUserAgent,
		},
		Metrics: registry,
		Logger:  logger.With("component", "pipeline"),
	})

	connector := meshwire.New(meshwire.Config{
		NodeURL:      cfg.NodeURL,
		AgentAddress: cfg.AgentAddress,
		Reconnect:    time.Duration(cfg.ReconnectSeconds) * time.Second,
		SendTimeout:  time.Duration(cfg.SendTimeoutSeconds) * time.Second,
	}, pipe, sqlStore, registry, logger.With("component", "connector"))

	listener := NewListener(connector, logger.With("component", "listener"))

	var reporter *metrics.Reporter
	if !cfg.MetricsReportOff {
		reporter = metrics.NewReporter(registry, cfg.MetricsReportSpec, logger.With("component", "metrics"))
	}

	router := httpapi.NewRouter(httpapi.Dependencies{
		Config:     cfg,
		Store:      sqlStore,
		Responder:  pipe,
		Listener:   listener,
		Connection: connector,
		Publisher:  connector,
		Metrics:    registry,
		Logger:     logger.With("component", "httpapi"),
	})

	return &Runtime{
		cfg:       cfg,
		logger:    logger,
		store:     sqlStore,
		pipeline:  pipe,
		connector: connector,
		listener:  listener,
		registry:  registry,
		reporter:  reporter,
		httpServer: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func newCompleter(cfg config.Config, logger *slog.Logger) (llm.Completer, error) {
	timeout := time.Duration(cfg.LLMTimeoutSec) * time.Second
	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case "", "openai":
		return openai.New(openai.Config{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.LLMModel,
			Timeout: timeout,
		}, logger.With("component", "llm", "provider", "openai")), nil
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.LLMModel,
			Timeout: timeout,
		}, logger.With("component", "llm", "provider", "anthropic")), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}
