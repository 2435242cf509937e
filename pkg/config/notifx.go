package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// NotifxConfig configures outbound delivery.
type NotifxConfig struct {
	// Provider is one of smtp, ses, console, file.
	Provider            string
	FromName            string
	SendTimeout         time.Duration
	AWSRegion           string
	SESConfigurationSet string
	// OutboxPrefix is the fsx path the file provider writes .eml files under.
	OutboxPrefix string

	HourlyLimit      int
	FailureThreshold int
	RecoveryAfter    time.Duration

	Accounts []SenderAccount
}

// SenderAccount is one sending identity. Type selects which email types it
// serves: admin, info, events, system or bulk.
type SenderAccount struct {
	Name        string     `yaml:"name"`
	Type        string     `yaml:"type"`
	Email       string     `yaml:"email"`
	FromName    string     `yaml:"from_name"`
	HourlyLimit int        `yaml:"hourly_limit"`
	SMTP        SMTPServer `yaml:"smtp"`
}

// SMTPServer holds the connection settings of one account.
type SMTPServer struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	Connections        int           `yaml:"connections"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	IdleTimeout        time.Duration `yaml:"idle_timeout"`
}

type accountsFile struct {
	Accounts []SenderAccount `yaml:"accounts"`
}

var validAccountTypes = map[string]bool{
	"admin": true, "info": true, "events": true, "system": true, "bulk": true,
}

func loadNotifxConfig() (NotifxConfig, error) {
	cfg := NotifxConfig{
		Provider:            strings.ToLower(getEnv("NOTIFX_PROVIDER", "console")),
		FromName:            getEnv("NOTIFX_FROM_NAME", getEnv("FROM_NAME", "Mailroom")),
		SendTimeout:         getEnvDuration("NOTIFX_SEND_TIMEOUT", 30*time.Second),
		AWSRegion:           getEnv("NOTIFX_AWS_REGION", getEnv("AWS_REGION", "us-east-1")),
		SESConfigurationSet: getEnv("NOTIFX_SES_CONFIGURATION_SET", ""),
		OutboxPrefix:        getEnv("NOTIFX_OUTBOX_PREFIX", "outbox"),
		HourlyLimit:         getEnvInt("NOTIFX_HOURLY_LIMIT", 500),
		FailureThreshold:    getEnvInt("NOTIFX_FAILURE_THRESHOLD", 3),
		RecoveryAfter:       getEnvDuration("NOTIFX_RECOVERY_AFTER", time.Hour),
	}

	if path := getEnv("NOTIFX_ACCOUNTS_FILE", ""); path != "" {
		accounts, err := LoadAccountsFile(path)
		if err != nil {
			return cfg, err
		}
		cfg.Accounts = accounts
	} else {
		cfg.Accounts = []SenderAccount{envAccount()}
	}

	for i := range cfg.Accounts {
		a := &cfg.Accounts[i]
		if a.FromName == "" {
			a.FromName = cfg.FromName
		}
		if a.HourlyLimit <= 0 {
			a.HourlyLimit = cfg.HourlyLimit
		}
		if a.SMTP.Connections <= 0 {
			a.SMTP.Connections = 4
		}
		if a.SMTP.IdleTimeout <= 0 {
			a.SMTP.IdleTimeout = 30 * time.Second
		}
	}

	return cfg, nil
}

// LoadAccountsFile reads sender accounts from a YAML file of the form
//
//	accounts:
//	  - name: system
//	    type: system
//	    email: noreply@example.org
//	    smtp: {host: smtp.example.org, port: 587, username: u, password: p}
func LoadAccountsFile(path string) ([]SenderAccount, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, configErrors.NewWithCause(ErrAccountsFile, err).WithDetail("path", path)
	}

	var f accountsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, configErrors.NewWithCause(ErrAccountsFile, err).WithDetail("path", path)
	}
	return f.Accounts, nil
}

// envAccount builds the single system account used when no accounts file is
// configured.
func envAccount() SenderAccount {
	return SenderAccount{
		Name:  "system",
		Type:  "system",
		Email: getEnv("NOTIFX_FROM_ADDRESS", getEnv("EMAIL_FROM_ADDRESS", "noreply@mailroom.local")),
		SMTP: SMTPServer{
			Host:        getEnv("SMTP_HOST", "localhost"),
			Port:        getEnvInt("SMTP_PORT", 587),
			Username:    getEnv("SMTP_USERNAME", ""),
			Password:    getEnv("SMTP_PASSWORD", ""),
			Connections: getEnvInt("SMTP_CONNECTIONS", 4),
		},
	}
}

func (n NotifxConfig) validate() error {
	fail := func(field, reason string) error {
		return configErrors.New(ErrInvalid).WithDetail("field", field).WithDetail("reason", reason)
	}

	switch n.Provider {
	case "smtp", "ses", "console", "file":
	default:
		return fail("NOTIFX_PROVIDER", "must be smtp, ses, console or file")
	}
	if n.SendTimeout <= 0 {
		return fail("NOTIFX_SEND_TIMEOUT", "must be positive")
	}
	if len(n.Accounts) == 0 {
		return fail("NOTIFX_ACCOUNTS_FILE", "no sender accounts configured")
	}

	seen := make(map[string]bool, len(n.Accounts))
	for _, a := range n.Accounts {
		if a.Name == "" || a.Email == "" {
			return fail("accounts", "every account needs a name and an email")
		}
		if seen[a.Name] {
			return fail("accounts", "duplicate account name "+a.Name)
		}
		seen[a.Name] = true
		if !validAccountTypes[a.Type] {
			return fail("accounts", "unknown account type "+a.Type)
		}
		if n.Provider == "smtp" && a.SMTP.Host == "" {
			return fail("accounts", "smtp host missing for "+a.Name)
		}
	}
	return nil
}
