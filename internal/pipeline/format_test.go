package pipeline

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"
)

func successResult(action Action, payload any) LookupResult {
	return LookupResult{
		Action:    action,
		Parameter: "vitalik",
		Outcome:   OutcomeSuccess,
		Payload:   payload,
	}
}

func TestFormatProfileMissingFieldsRenderNA(t *testing.T) {
	registry := NewRegistry(Endpoints{})
	result := successResult(ActionProfile, map[string]any{
		"result": map[string]any{
			"name":            "Vitalik",
			"author_handle":   "vitalik",
			"followers_count": float64(100000),
			"tags":            []any{"eth", "dev"},
		},
	})

	reply, recovered := registry.Format(result)
	if recovered {
		t.Fatal("did not expect formatter recovery")
	}
	if !strings.Contains(reply, "Bio: N/A") {
		t.Fatalf("expected missing bio rendered as N/A:\n%s", reply)
	}
	if !strings.Contains(reply, "Name: Vitalik") || !strings.Contains(reply, "Followers: 100000") {
		t.Fatalf("expected present fields intact:\n%s", reply)
	}
	if !strings.Contains(reply, "Tags: eth, dev") {
		t.Fatalf("expected tags joined with comma:\n%s", reply)
	}
}

func TestFormatProfileMissingResultRecovers(t *testing.T) {
	registry := NewRegistry(Endpoints{})
	reply, recovered := registry.Format(successResult(ActionProfile, map[string]any{"status": "ok"}))
	if !recovered {
		t.Fatal("expected formatter recovery")
	}
	if reply != profileErrorMessage {
		t.Fatalf("expected fixed profile error string, got %q", reply)
	}
}

func TestFormatPostsEmptyList(t *testing.T) {
	registry := NewRegistry(Endpoints{})
	reply, recovered := registry.Format(successResult(ActionPosts, map[string]any{"result": []any{}}))
	if recovered {
		t.Fatal("did not expect formatter recovery")
	}
	if reply != noPostsMessage {
		t.Fatalf("expected fixed no-data string verbatim, got %q", reply)
	}
}

func TestFormatPostsTruncatesBody(t *testing.T) {
	registry := NewRegistry(Endpoints{})
	body := strings.Repeat("a", 250)
	result := successResult(ActionPosts, map[string]any{
		"result": []any{
			map[string]any{"text": body, "likes_count": float64(12)},
		},
	})

	reply, _ := registry.Format(result)
	if !strings.Contains(reply, strings.Repeat("a", 200)+"...") {
		t.Fatalf("expected truncated body with ellipsis:\n%s", reply)
	}
	if strings.Contains(reply, strings.Repeat("a", 201)) {
		t.Fatal("expected body cut at 200 characters")
	}
	if !strings.Contains(reply, "Likes: 12") {
		t.Fatalf("expected likes counter:\n%s", reply)
	}
	if !strings.Contains(reply, "Replies: N/A | Reposts: N/A | Views: N/A") {
		t.Fatalf("expected absent counters defaulted to N/A:\n%s", reply)
	}
	if !strings.Contains(reply, "Top 1 Posts") {
		t.Fatalf("expected header with count:\n%s", reply)
	}
}

func TestFormatPostsTruncatesOnRuneBoundary(t *testing.T) {
	registry := NewRegistry(Endpoints{})
	// 199 ASCII bytes followed by multi-byte runes puts the byte limit
	// inside the first non-ASCII character.
	body := strings.Repeat("a", 199) + strings.Repeat("é", 30)
	result := successResult(ActionPosts, map[string]any{
		"result": []any{
			map[string]any{"text": body, "likes_count": float64(1)},
		},
	})

	reply, _ := registry.Format(result)
	if !utf8.ValidString(reply) {
		t.Fatalf("expected valid UTF-8 after truncation:\n%q", reply)
	}
	if !strings.Contains(reply, strings.Repeat("a", 199)+"...") {
		t.Fatalf("expected truncation to back off the split rune:\n%s", reply)
	}
}

func TestFormatFollowers(t *testing.T) {
	registry := NewRegistry(Endpoints{})
	payload := map[string]any{
		"result": map[string]any{
			"followers": []any{
				map[string]any{
					"name":                  "Naval",
					"author_handle":         "naval",
					"tags":                  []any{"angel"},
					"followers_count":       float64(2000000),
					"smart_followers_count": float64(1500),
				},
			},
		},
	}

	reply, recovered := registry.Format(successResult(ActionFollowers, payload))
	if recovered {
		t.Fatal("did not expect formatter recovery")
	}
	for _, want := range []string{"Top 1 Followers", "Naval (@naval)", "Tags: angel", "Followers: 2000000 | Smart Followers: 1500"} {
		if !strings.Contains(reply, want) {
			t.Fatalf("expected %q in reply:\n%s", want, reply)
		}
	}
}

func TestFormatFollowersEmptyList(t *testing.T) {
	registry := NewRegistry(Endpoints{})
	reply, _ := registry.Format(successResult(ActionFollowers, map[string]any{"result": []any{}}))
	if reply != noFollowersMessage {
		t.Fatalf("expected fixed no-data string, got %q", reply)
	}
}

func TestFormatGenericFallbackForFailures(t *testing.T) {
	registry := NewRegistry(Endpoints{})
	result := LookupResult{
		Action:    ActionProfile,
		Parameter: "vitalik",
		Outcome:   OutcomeTransportFailure,
		Message:   "connection refused",
	}

	reply, recovered := registry.Format(result)
	if recovered {
		t.Fatal("did not expect formatter recovery")
	}
	var decoded LookupResult
	if err := json.Unmarshal([]byte(reply), &decoded); err != nil {
		t.Fatalf("expected indented JSON fallback: %v", err)
	}
	if decoded.Message != "connection refused" {
		t.Fatalf("expected message preserved, got %q", decoded.Message)
	}
	if !strings.Contains(reply, "\n  ") {
		t.Fatal("expected indented JSON")
	}
}

func TestFormatIsDeterministic(t *testing.T) {
	registry := NewRegistry(Endpoints{})
	result := successResult(ActionProfile, map[string]any{
		"result": map[string]any{
			"name":          "Vitalik",
			"author_handle": "vitalik",
			"tags":          []any{"eth", "dev"},
		},
	})

	first, _ := registry.Format(result)
	second, _ := registry.Format(result)
	if first != second {
		t.Fatal("expected byte-identical output for repeated formatting")
	}

	failure := LookupResult{Action: ActionPosts, Parameter: "naval", Outcome: OutcomeTimeout, Message: "no response within 10s"}
	firstJSON, _ := registry.Format(failure)
	secondJSON, _ := registry.Format(failure)
	if firstJSON != secondJSON {
		t.Fatal("expected byte-identical JSON fallback output")
	}
}
