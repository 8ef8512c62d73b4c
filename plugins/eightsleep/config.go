package eightsleep

import (
	"fmt"
	"os"
	"time"

	"github.com/joshp123/gobed/internal/config"
)

const (
	defaultBaseURL = "https://client-api.8slp.net/v1"

	defaultPollInterval = 60 * time.Second
	defaultIdleAfter    = 10 * time.Minute

	defaultRequestsPerMinute = 20
)

// Config defines runtime configuration for the Eight Sleep client.
type Config struct {
	BaseURL           string
	PartnerSide       bool
	PollInterval      time.Duration
	IdleAfter         time.Duration
	RequestsPerMinute int
}

// Credentials are the vendor account login. Deliberately kept out of the
// config file; they come from the environment.
type Credentials struct {
	Email    string
	Password string
}

func ConfigFromYAML(cfg *config.EightSleepConfig) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("eightsleep config is required")
	}

	out := Config{
		BaseURL:           defaultBaseURL,
		PartnerSide:       cfg.PartnerSide,
		PollInterval:      defaultPollInterval,
		IdleAfter:         defaultIdleAfter,
		RequestsPerMinute: defaultRequestsPerMinute,
	}
	if cfg.BaseURL != "" {
		out.BaseURL = cfg.BaseURL
	}
	if cfg.PollSeconds > 0 {
		out.PollInterval = time.Duration(cfg.PollSeconds) * time.Second
	}
	if cfg.IdleSeconds > 0 {
		out.IdleAfter = time.Duration(cfg.IdleSeconds) * time.Second
	}
	if cfg.RequestsPerMinute > 0 {
		out.RequestsPerMinute = cfg.RequestsPerMinute
	}
	if out.IdleAfter <= out.PollInterval {
		return Config{}, fmt.Errorf("eightsleep idle window must exceed the poll interval")
	}
	return out, nil
}

// CredentialsFromEnv reads the account credentials. Missing credentials are
// a configuration error: the bridge cannot run without them.
func CredentialsFromEnv() (Credentials, error) {
	email := os.Getenv("EIGHTSLEEP_EMAIL")
	password := os.Getenv("EIGHTSLEEP_PASSWORD")
	if email == "" || password == "" {
		return Credentials{}, fmt.Errorf("EIGHTSLEEP_EMAIL and EIGHTSLEEP_PASSWORD must be set")
	}
	return Credentials{Email: email, Password: password}, nil
}
