// Package config loads runtime configuration: team profiles from YAML and
// controller settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/switchpilot/switchpilot/internal/team"
)

// Profiles is the parsed team-profiles document.
type Profiles struct {
	Teams []team.Profile `yaml:"teams"`
}

// LoadProfiles reads and validates the team profiles file. Every profile is
// overlaid on team.DefaultProfile so partial documents get sane defaults.
// Invalid profiles are rejected here, never at decision time.
func LoadProfiles(path string) (map[string]*team.Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles %s: %w", path, err)
	}

	// First pass to learn team names so defaults can be seeded per team.
	var names struct {
		Teams []struct {
			Name string `yaml:"name"`
		} `yaml:"teams"`
	}
	if err := yaml.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("parse profiles %s: %w", path, err)
	}

	doc := Profiles{Teams: make([]team.Profile, 0, len(names.Teams))}
	for _, n := range names.Teams {
		doc.Teams = append(doc.Teams, team.DefaultProfile(n.Name))
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse profiles %s: %w", path, err)
	}

	profiles := make(map[string]*team.Profile, len(doc.Teams))
	for i := range doc.Teams {
		p := &doc.Teams[i]
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("profiles %s: %w", path, err)
		}
		if _, dup := profiles[p.Name]; dup {
			return nil, fmt.Errorf("profiles %s: duplicate team %q", path, p.Name)
		}
		profiles[p.Name] = p
	}
	return profiles, nil
}

// Controller holds controller daemon settings from the environment.
type Controller struct {
	ProfilesPath  string
	TopologyPath  string
	StateBackend  string // "file" or "postgres"
	StatePath     string
	CycleSchedule string // cron expression for the assessment sweep

	MetricsBaseURL string
	LogsBaseURL    string
	ProxyAdminURL  string
	SignalTimeout  time.Duration

	BackupCommand []string
	SyncCommand   []string

	WebhookURL         string
	PubSubProjectID    string
	PubSubTopic        string
	PubSubSubscription string

	ListenAddr string
}

// ControllerFromEnv builds controller settings from environment variables
// with defaults suitable for local development.
func ControllerFromEnv() Controller {
	timeout, _ := time.ParseDuration(getEnvOrDefault("SIGNAL_TIMEOUT", "15s"))

	return Controller{
		ProfilesPath:  getEnvOrDefault("TEAM_PROFILES_PATH", "config/teams.yml"),
		TopologyPath:  getEnvOrDefault("TOPOLOGY_PATH", "config/topology.yml"),
		StateBackend:  getEnvOrDefault("STATE_BACKEND", "file"),
		StatePath:     getEnvOrDefault("STATE_PATH", "state/switchpilot.json"),
		CycleSchedule: getEnvOrDefault("CYCLE_SCHEDULE", "@every 2m"),

		MetricsBaseURL: getEnvOrDefault("METRICS_QUERY_URL", "http://localhost:9090"),
		LogsBaseURL:    getEnvOrDefault("LOGS_QUERY_URL", "http://localhost:3100"),
		ProxyAdminURL:  getEnvOrDefault("PROXY_ADMIN_URL", "http://localhost:8404"),
		SignalTimeout:  timeout,

		BackupCommand: splitCommand(os.Getenv("BACKUP_COMMAND")),
		SyncCommand:   splitCommand(os.Getenv("SYNC_COMMAND")),

		WebhookURL:         os.Getenv("NOTIFY_WEBHOOK_URL"),
		PubSubProjectID:    os.Getenv("PUBSUB_PROJECT_ID"),
		PubSubTopic:        os.Getenv("PUBSUB_TOPIC"),
		PubSubSubscription: os.Getenv("PUBSUB_SUBSCRIPTION"),

		ListenAddr: ":" + getEnvOrDefault("APP_PORT", "8080"),
	}
}

// API holds API server settings from the environment.
type API struct {
	ListenAddr    string
	JWTSigningKey string
	RequireAuth   bool
}

// APIFromEnv builds API server settings from environment variables.
func APIFromEnv() API {
	requireAuth, _ := strconv.ParseBool(getEnvOrDefault("API_REQUIRE_AUTH", "false"))
	return API{
		ListenAddr:    ":" + getEnvOrDefault("APP_PORT", "8080"),
		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
		RequireAuth:   requireAuth,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitCommand(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
