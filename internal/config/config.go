package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Environment string
	HTTPAddr    string
	APIURL      string
	DBDSN       string

	NodeURL             string
	AgentAddress        string
	ReconnectSeconds    int
	ListenerAutostart   bool
	SendTimeoutSeconds  int
	MetricsReportSpec   string
	MetricsReportOff    bool

	LLMProvider   string // openai | anthropic
	LLMBaseURL    string
	LLMAPIKey     string
	LLMModel      string
	LLMTimeoutSec int

	ProfileEndpoint   string
	PostsEndpoint     string
	FollowersEndpoint string

	LookupTimeoutSec    int
	LookupTLSSkipVerify bool
	LookupUserAgent     string
}

func FromEnv() Config {
	return Config{
		Environment: stringOrDefault("PULSE_ENV", "development"),
		HTTPAddr:    stringOrDefault("PULSE_HTTP_ADDR", ":8080"),
		// Where the CLI reaches a running instance.
		APIURL: stringOrDefault("PULSE_API_URL", "http://localhost:8080"),
		// Shared in-memory database: conversation history lives for the
		// process lifetime only unless pointed at a file.
		DBDSN: stringOrDefault("PULSE_DB_DSN", "file:pulse?mode=memory&cache=shared"),

		NodeURL:            stringOrDefault("PULSE_NODE_URL", "http://localhost:5555"),
		AgentAddress:       strings.TrimSpace(os.Getenv("PULSE_AGENT_ADDRESS")),
		ReconnectSeconds:   intOrDefault("PULSE_NODE_RECONNECT_SECONDS", 3),
		ListenerAutostart:  boolOrDefault("PULSE_LISTENER_AUTOSTART", true),
		SendTimeoutSeconds: intOrDefault("PULSE_SEND_TIMEOUT_SECONDS", 15),
		MetricsReportSpec:  stringOrDefault("PULSE_METRICS_REPORT_SPEC", "@every 1m"),
		MetricsReportOff:   boolOrDefault("PULSE_METRICS_REPORT_OFF", false),

		LLMProvider: stringOrDefault("PULSE_LLM_PROVIDER", "openai"),
		// Empty means each provider client falls back to its own API host.
		LLMBaseURL:    strings.TrimSpace(os.Getenv("PULSE_LLM_BASE_URL")),
		LLMAPIKey:     strings.TrimSpace(os.Getenv("PULSE_LLM_API_KEY")),
		LLMModel:      stringOrDefault("PULSE_LLM_MODEL", "gpt-4o"),
		LLMTimeoutSec: intOrDefault("PULSE_LLM_TIMEOUT_SECONDS", 60),

		ProfileEndpoint:   stringOrDefault("PULSE_PROFILE_ENDPOINT", "https://api.socialpulse.xyz/v1/profiles/{handle}"),
		PostsEndpoint:     stringOrDefault("PULSE_POSTS_ENDPOINT", "https://api.socialpulse.xyz/v1/profiles/{handle}/top-posts"),
		FollowersEndpoint: stringOrDefault("PULSE_FOLLOWERS_ENDPOINT", "https://api.socialpulse.xyz/v1/profiles/{handle}/top-followers"),

		LookupTimeoutSec:    intOrDefault("PULSE_LOOKUP_TIMEOUT_SECONDS", 10),
		LookupTLSSkipVerify: boolOrDefault("PULSE_LOOKUP_TLS_SKIP_VERIFY", false),
		LookupUserAgent:     stringOrDefault("PULSE_LOOKUP_USER_AGENT", "pulse-agent/0.1"),
	}
}

func stringOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

func boolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
