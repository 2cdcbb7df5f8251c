package pipeline

import (
	"net/url"
	"strings"
)

// Action selects which data endpoint is called and which formatter
// renders the result. The set is closed: anything else is replaced by
// DefaultAction before it reaches the lookup client.
type Action string

const (
	ActionProfile   Action = "profile"
	ActionPosts     Action = "posts"
	ActionFollowers Action = "followers"
)

const DefaultAction = ActionProfile

const handlePlaceholder = "{handle}"

type actionSpec struct {
	Endpoint    string
	Description string
	Format      func(LookupResult) (string, bool)
}

// Endpoints carries the three URL templates, each with one {handle}
// placeholder. Empty fields keep the built-in defaults.
type Endpoints struct {
	Profile   string
	Posts     string
	Followers string
}

type Registry struct {
	specs map[Action]actionSpec
}

func NewRegistry(endpoints Endpoints) *Registry {
	profile := stringOrFallback(endpoints.Profile, "https://api.socialpulse.xyz/v1/profiles/{handle}")
	posts := stringOrFallback(endpoints.Posts, "https://api.socialpulse.xyz/v1/profiles/{handle}/top-posts")
	followers := stringOrFallback(endpoints.Followers, "https://api.socialpulse.xyz/v1/profiles/{handle}/top-followers")

	return &Registry{
		specs: map[Action]actionSpec{
			ActionProfile: {
				Endpoint:    profile,
				Description: "fetch profile details (name, bio, follower count, tags) for a handle",
				Format:      formatProfile,
			},
			ActionPosts: {
				Endpoint:    posts,
				Description: "fetch the top posts and their engagement numbers for a handle",
				Format:      formatPosts,
			},
			ActionFollowers: {
				Endpoint:    followers,
				Description: "fetch the top followers for a handle",
				Format:      formatFollowers,
			},
		},
	}
}

// ParseAction normalizes a raw token and checks membership in the
// closed action set.
func ParseAction(value string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(value))) {
	case ActionProfile:
		return ActionProfile, true
	case ActionPosts:
		return ActionPosts, true
	case ActionFollowers:
		return ActionFollowers, true
	default:
		return "", false
	}
}

// Resolve returns the endpoint URL for an action with the parameter
// substituted. Unknown actions resolve through DefaultAction, and the
// action actually used is returned alongside.
func (r *Registry) Resolve(action Action, parameter string) (Action, string) {
	spec, ok := r.specs[action]
	if !ok {
		action = DefaultAction
		spec = r.specs[action]
	}
	return action, strings.ReplaceAll(spec.Endpoint, handlePlaceholder, url.QueryEscape(parameter))
}

func (r *Registry) Description(action Action) string {
	return r.specs[action].Description
}

// Format renders a lookup result through the action's formatter, or
// through the generic JSON fallback for non-success outcomes and
// unknown actions. The second return reports whether a dedicated
// formatter had to recover from a malformed payload.
func (r *Registry) Format(result LookupResult) (string, bool) {
	if result.Outcome != OutcomeSuccess {
		return formatGeneric(result), false
	}
	spec, ok := r.specs[result.Action]
	if !ok || spec.Format == nil {
		return formatGeneric(result), false
	}
	return spec.Format(result)
}

func stringOrFallback(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
