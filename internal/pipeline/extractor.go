package pipeline

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/pulsebot/pulse/internal/llm"
	"github.com/pulsebot/pulse/internal/metrics"
)

var handleTokenPattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,}$`)

// Extractor pulls the handle a message is asking about. Given
// non-empty input it always returns something: the completion, a
// heuristic token scan, or the trimmed message itself.
type Extractor struct {
	completer llm.Completer
	metrics   *metrics.Registry
	logger    *slog.Logger
}

func NewExtractor(completer llm.Completer, reg *metrics.Registry, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		completer: completer,
		metrics:   reg,
		logger:    logger,
	}
}

func (e *Extractor) Extract(ctx context.Context, text string) string {
	completion, err := e.completer.Complete(ctx, buildExtractorPrompt(text))
	if err != nil {
		if e.metrics != nil {
			e.metrics.ExtractorFallback()
		}
		parameter := scanForHandle(text)
		e.logger.Warn("extractor call failed, using heuristic scan", "error", err, "parameter", parameter)
		return parameter
	}

	parameter := strings.TrimPrefix(strings.TrimSpace(completion), "@")
	if parameter == "" {
		if e.metrics != nil {
			e.metrics.ExtractorFallback()
		}
		parameter = scanForHandle(text)
		e.logger.Warn("extractor returned empty completion, using heuristic scan", "parameter", parameter)
	}
	return parameter
}

func buildExtractorPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Extract the social handle the user is asking about. Strip any leading \"@\". Reply with the handle only.\n\n")
	b.WriteString("Examples:\n")
	b.WriteString("Message: Show me @vitalik profile\nHandle: vitalik\n")
	b.WriteString("Message: top posts for naval please\nHandle: naval\n")
	b.WriteString("Message: who are the smartest followers of balajis?\nHandle: balajis\n\n")
	b.WriteString("Message: ")
	b.WriteString(strings.TrimSpace(text))
	b.WriteString("\nHandle:")
	return b.String()
}

// scanForHandle prefers an explicit @mention, then the first token that
// looks like a handle, then the whole trimmed message.
func scanForHandle(text string) string {
	trimmed := strings.TrimSpace(text)
	tokens := strings.Fields(trimmed)
	for _, token := range tokens {
		if len(token) > 1 && strings.HasPrefix(token, "@") {
			return strings.TrimPrefix(token, "@")
		}
	}
	for _, token := range tokens {
		if handleTokenPattern.MatchString(token) {
			return token
		}
	}
	return trimmed
}
