package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pulsebot/pulse/internal/metrics"
)

func TestClassifyValidTokens(t *testing.T) {
	registry := NewRegistry(Endpoints{})
	cases := map[string]Action{
		"profile":     ActionProfile,
		"posts":       ActionPosts,
		"followers":   ActionFollowers,
		" Profile \n": ActionProfile,
		"FOLLOWERS":   ActionFollowers,
		"\tposts\t":   ActionPosts,
	}
	for completion, want := range cases {
		classifier := NewClassifier(stubCompleter{classify: completion}, registry, nil, testLogger())
		got := classifier.Classify(context.Background(), "what about @naval?")
		if got != want {
			t.Fatalf("completion %q: expected %s, got %s", completion, want, got)
		}
	}
}

func TestClassifyGarbageFallsBackToDefault(t *testing.T) {
	registry := NewRegistry(Endpoints{})
	reg := metrics.NewRegistry()
	for _, completion := range []string{"", "banana", "profile details please", "profiles"} {
		classifier := NewClassifier(stubCompleter{classify: completion}, registry, reg, testLogger())
		got := classifier.Classify(context.Background(), "what about @naval?")
		if got != DefaultAction {
			t.Fatalf("completion %q: expected default action, got %s", completion, got)
		}
	}
	if reg.Snapshot()["classifier_fallbacks"] != 4 {
		t.Fatalf("expected 4 fallbacks counted, got %d", reg.Snapshot()["classifier_fallbacks"])
	}
}

func TestClassifyErrorFallsBackToDefault(t *testing.T) {
	registry := NewRegistry(Endpoints{})
	classifier := NewClassifier(stubCompleter{err: errors.New("network down")}, registry, nil, testLogger())
	got := classifier.Classify(context.Background(), "what about @naval?")
	if got != DefaultAction {
		t.Fatalf("expected default action on completer error, got %s", got)
	}
}

func TestClassifierPromptNamesAllActions(t *testing.T) {
	registry := NewRegistry(Endpoints{})
	classifier := NewClassifier(stubCompleter{classify: "profile"}, registry, nil, testLogger())
	prompt := classifier.buildPrompt("show me @vitalik")
	for _, action := range []Action{ActionProfile, ActionPosts, ActionFollowers} {
		if !strings.Contains(prompt, "- "+string(action)+":") {
			t.Fatalf("expected prompt to describe %s:\n%s", action, prompt)
		}
	}
}
