package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pulsebot/pulse/internal/llm"
	"github.com/pulsebot/pulse/internal/metrics"
)

// Classifier asks the completion service which action fits a message.
// It never fails: invalid tokens and completer errors both resolve to
// DefaultAction.
type Classifier struct {
	completer llm.Completer
	registry  *Registry
	metrics   *metrics.Registry
	logger    *slog.Logger
}

func NewClassifier(completer llm.Completer, registry *Registry, reg *metrics.Registry, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		completer: completer,
		registry:  registry,
		metrics:   reg,
		logger:    logger,
	}
}

func (c *Classifier) Classify(ctx context.Context, text string) Action {
	completion, err := c.completer.Complete(ctx, c.buildPrompt(text))
	if err != nil {
		c.fallback("classifier call failed", "error", err)
		return DefaultAction
	}

	action, ok := ParseAction(completion)
	if !ok {
		c.fallback("classifier returned unknown action", "completion", strings.TrimSpace(completion))
		return DefaultAction
	}

	c.logger.Debug("message classified", "action", string(action))
	return action
}

func (c *Classifier) buildPrompt(text string) string {
	var b strings.Builder
	b.WriteString("You route messages for a social data agent. Pick exactly one action for the message below.\n\nActions:\n")
	for _, action := range []Action{ActionProfile, ActionPosts, ActionFollowers} {
		fmt.Fprintf(&b, "- %s: %s\n", action, c.registry.Description(action))
	}
	b.WriteString("\nReply with exactly one word: profile, posts, or followers. No punctuation, no explanation.\n\nMessage: ")
	b.WriteString(strings.TrimSpace(text))
	return b.String()
}

func (c *Classifier) fallback(reason string, args ...any) {
	if c.metrics != nil {
		c.metrics.ClassifierFallback()
	}
	args = append(args, "default_action", string(DefaultAction))
	c.logger.Warn(reason, args...)
}
