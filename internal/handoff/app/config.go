package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is read from the environment. Every knob has a workable
// default except provider credentials, which gate which adapters get
// registered.
type Config struct {
	Issuer   string   `env:"HANDOFF_ISSUER" envDefault:"handoff-broker"`
	Audience []string `env:"HANDOFF_AUDIENCE" envSeparator:"," envDefault:"driftboard"`

	Env       string `env:"ENV" envDefault:"dev"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	Port      int    `env:"PORT" envDefault:"8080"`

	DatabaseFile string `env:"HANDOFF_DATABASE_FILE" envDefault:"handoff.db"`

	// CallbackBaseURL is the externally reachable base of this service;
	// the provider redirect URI is derived from it.
	CallbackBaseURL string `env:"HANDOFF_CALLBACK_BASE_URL" envDefault:"http://localhost:8080"`

	// ReturnToAllowList is the set of URL prefixes return_to may point at.
	ReturnToAllowList []string `env:"HANDOFF_RETURN_TO_ALLOW_LIST" envSeparator:","`

	SessionTTL        time.Duration `env:"HANDOFF_SESSION_TTL" envDefault:"10m"`
	AccessTokenTTL    time.Duration `env:"HANDOFF_ACCESS_TOKEN_TTL" envDefault:"1h"`
	MaxRedeemAttempts int           `env:"HANDOFF_MAX_REDEEM_ATTEMPTS" envDefault:"5"`
	InvitationTTL     time.Duration `env:"HANDOFF_INVITATION_TTL" envDefault:"168h"`

	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL" envDefault:"1m"`
	SessionRetention     time.Duration `env:"HANDOFF_SESSION_RETENTION" envDefault:"1h"`
	ShutdownGracePeriod  time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`

	// SealKeyFile points at the key material used to seal provider
	// tokens at rest. Empty falls back to HANDOFF_SEAL_KEY or an
	// ephemeral key.
	SealKeyFile string `env:"HANDOFF_SEAL_KEY_FILE"`

	GitHubClientID     string `env:"HANDOFF_GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"HANDOFF_GITHUB_CLIENT_SECRET"`
	GoogleClientID     string `env:"HANDOFF_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"HANDOFF_GOOGLE_CLIENT_SECRET"`
}

// LoadConfig parses the environment into a Config.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}
