package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
)

type Config struct {
	Env            string `env:"ENVIRONMENT"`
	ServerPort     int    `env:"SERVER_PORT" envDefault:"8080"`
	BasicAuthCreds string `env:"BASIC_AUTH_CREDS"`
	DatabasePath   string `env:"DATABASE_PATH" envDefault:"postwatch.sqlite"`

	// Seed values for the monitor settings; only used when the database has none yet.
	Accounts     []string      `env:"ACCOUNTS" envSeparator:","`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"5m"`
	SettingsFile string        `env:"SETTINGS_FILE"`

	Fetch struct {
		Source          string        `env:"FETCH_SOURCE" envDefault:"api"`
		BaseURL         string        `env:"FETCH_BASE_URL"`
		Token           string        `env:"FETCH_TOKEN"`
		Timeout         time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`
		PerAccountLimit int           `env:"PER_ACCOUNT_LIMIT" envDefault:"20"`
	}

	Delivery struct {
		WebhookURL    string        `env:"WEBHOOK_URL"`
		WebhookToken  string        `env:"WEBHOOK_TOKEN"`
		AgentCommand  string        `env:"AGENT_COMMAND"`
		SinkTimeout   time.Duration `env:"SINK_TIMEOUT" envDefault:"15s"`
		LogTTL        time.Duration `env:"DELIVERY_LOG_TTL" envDefault:"336h"`
		DedupCapacity int           `env:"DEDUP_CAPACITY" envDefault:"100"`
	}

	Mailgun struct {
		Domain     string `env:"MAILGUN_DOMAIN"`
		APIKey     string `env:"MAILGUN_API_KEY"`
		SenderFrom string `env:"MAILGUN_SENDER_FROM"`
		Recipient  string `env:"MAILGUN_RECIPIENT"`
	}

	// Used by the CLI subcommands to reach a running server.
	APIURL string `env:"POSTWATCH_API_URL" envDefault:"http://localhost:8080"`

	creds map[string]string
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	creds, err := cfg.parseCreds()
	if err != nil {
		return nil, err
	}
	cfg.creds = creds

	return cfg, nil
}

func NewConfig(log *zap.Logger) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if len(cfg.creds) == 0 {
		log.Sugar().Info("BASIC_AUTH_CREDS is empty, the API will not require authentication")
	}
	return cfg, nil
}

func (cfg *Config) GetCreds() map[string]string {
	return cfg.creds
}

// FirstCred returns any one configured credential pair, for the CLI client.
func (cfg *Config) FirstCred() (user, pass string, ok bool) {
	for u, p := range cfg.creds {
		return u, p, true
	}
	return "", "", false
}

func (cfg *Config) MailgunEnabled() bool {
	return cfg.Mailgun.Domain != "" && cfg.Mailgun.APIKey != "" && cfg.Mailgun.Recipient != ""
}

func (cfg *Config) parseCreds() (map[string]string, error) {
	result := make(map[string]string)
	if strings.TrimSpace(cfg.BasicAuthCreds) == "" {
		return result, nil
	}

	creds := strings.Split(cfg.BasicAuthCreds, ",")
	if len(creds) == 0 {
		return nil, errors.New("BASIC_AUTH_CREDS envvar should be filled with comma-separated values -- user1:pass1,user2:pass2")
	}

	for _, cred := range creds {
		userPass := strings.Split(cred, ":")
		if len(userPass) != 2 {
			return nil, fmt.Errorf("failed to parse '%s', each credential should be delimited by a colon -- user1:pass1,user2:pass2", cred)
		}

		user, pass := userPass[0], userPass[1]
		result[strings.Trim(user, " ")] = strings.Trim(pass, " ")
	}

	return result, nil
}
