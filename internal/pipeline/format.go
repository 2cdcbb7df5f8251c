package pipeline

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

const missingField = "N/A"

const (
	profileErrorMessage   = "Could not read profile details from the response."
	postsErrorMessage     = "Could not read top posts from the response."
	followersErrorMessage = "Could not read top followers from the response."

	noPostsMessage     = "No posts found."
	noFollowersMessage = "No followers found."

	postBodyLimit = 200
)

// formatProfile renders the profile lookup payload. Missing fields
// render as "N/A"; a missing result object recovers into a fixed error
// string. The second return reports that recovery.
func formatProfile(result LookupResult) (string, bool) {
	profile, ok := asMap(resultField(result.Payload))
	if !ok {
		return profileErrorMessage, true
	}

	var b strings.Builder
	b.WriteString("Profile Details\n\n")
	fmt.Fprintf(&b, "Name: %s\n", stringField(profile, "name"))
	fmt.Fprintf(&b, "Handle: @%s\n", stringField(profile, "author_handle"))
	fmt.Fprintf(&b, "Bio: %s\n", stringField(profile, "bio"))
	fmt.Fprintf(&b, "Profile Image: %s\n", stringField(profile, "profile_image_url"))
	fmt.Fprintf(&b, "Followers: %s\n", numberField(profile, "followers_count"))
	fmt.Fprintf(&b, "Tags: %s", joinTags(profile["tags"]))
	return b.String(), false
}

func formatPosts(result LookupResult) (string, bool) {
	items, ok := asList(resultField(result.Payload))
	if !ok {
		return postsErrorMessage, true
	}
	if len(items) == 0 {
		return noPostsMessage, false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Top %d Posts\n", len(items))
	for i, item := range items {
		post, ok := asMap(item)
		if !ok {
			return postsErrorMessage, true
		}
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, truncateBody(stringField(post, "text")))
		fmt.Fprintf(&b, "   Created: %s\n", stringField(post, "created_at"))
		fmt.Fprintf(&b, "   Likes: %s | Replies: %s | Reposts: %s | Views: %s\n",
			numberField(post, "likes_count"),
			numberField(post, "replies_count"),
			numberField(post, "reposts_count"),
			numberField(post, "views_count"),
		)
	}
	return b.String(), false
}

func formatFollowers(result LookupResult) (string, bool) {
	items, ok := followerList(resultField(result.Payload))
	if !ok {
		return followersErrorMessage, true
	}
	if len(items) == 0 {
		return noFollowersMessage, false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Top %d Followers\n", len(items))
	for i, item := range items {
		follower, ok := asMap(item)
		if !ok {
			return followersErrorMessage, true
		}
		fmt.Fprintf(&b, "\n%d. %s (@%s)\n", i+1, stringField(follower, "name"), stringField(follower, "author_handle"))
		fmt.Fprintf(&b, "   Tags: %s\n", joinTags(follower["tags"]))
		fmt.Fprintf(&b, "   Followers: %s | Smart Followers: %s\n",
			numberField(follower, "followers_count"),
			numberField(follower, "smart_followers_count"),
		)
	}
	return b.String(), false
}

// formatGeneric dumps the whole result as indented JSON. It covers
// every non-success outcome and any action without a formatter.
func formatGeneric(result LookupResult) string {
	rendered, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errorEnvelope("Failed to process request")
	}
	return string(rendered)
}

func errorEnvelope(message string) string {
	rendered, err := json.MarshalIndent(map[string]string{"error": message}, "", "  ")
	if err != nil {
		return `{"error": "Failed to process request"}`
	}
	return string(rendered)
}

// followerList accepts either a bare array or an object wrapping the
// array under "followers"; the upstream API has shipped both shapes.
func followerList(value any) ([]any, bool) {
	if items, ok := asList(value); ok {
		return items, true
	}
	wrapper, ok := asMap(value)
	if !ok {
		return nil, false
	}
	return asList(wrapper["followers"])
}

func truncateBody(text string) string {
	if text == missingField {
		return text
	}
	if len(text) <= postBodyLimit {
		return text
	}
	// Back off to a rune boundary so a multi-byte character is never
	// split mid-sequence.
	cut := postBodyLimit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

func joinTags(value any) string {
	switch tags := value.(type) {
	case []any:
		parts := make([]string, 0, len(tags))
		for _, tag := range tags {
			parts = append(parts, fmt.Sprint(tag))
		}
		if len(parts) == 0 {
			return missingField
		}
		return strings.Join(parts, ", ")
	case string:
		if strings.TrimSpace(tags) == "" {
			return missingField
		}
		return tags
	default:
		return missingField
	}
}

func resultField(payload any) any {
	m, ok := asMap(payload)
	if !ok {
		return nil
	}
	return m["result"]
}

func asMap(value any) (map[string]any, bool) {
	m, ok := value.(map[string]any)
	return m, ok
}

func asList(value any) ([]any, bool) {
	l, ok := value.([]any)
	return l, ok
}

func stringField(m map[string]any, key string) string {
	value, ok := m[key]
	if !ok || value == nil {
		return missingField
	}
	text, ok := value.(string)
	if !ok || strings.TrimSpace(text) == "" {
		return missingField
	}
	return text
}

func numberField(m map[string]any, key string) string {
	value, ok := m[key]
	if !ok || value == nil {
		return missingField
	}
	switch number := value.(type) {
	case float64:
		return strconv.FormatFloat(number, 'f', -1, 64)
	case string:
		if strings.TrimSpace(number) == "" {
			return missingField
		}
		return number
	default:
		return missingField
	}
}
