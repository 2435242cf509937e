package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Abraxas-365/mailroom/pkg/config"
	"github.com/Abraxas-365/mailroom/pkg/errx"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NOTIFX_PROVIDER", "console")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MailQueue.DefaultBatchSize != 20 {
		t.Fatalf("expected default batch size 20, got %d", cfg.MailQueue.DefaultBatchSize)
	}
	if cfg.MailQueue.RetryPolicy != config.RetryManual {
		t.Fatalf("expected manual retry policy, got %s", cfg.MailQueue.RetryPolicy)
	}
	if len(cfg.Notifx.Accounts) != 1 || cfg.Notifx.Accounts[0].Type != "system" {
		t.Fatalf("expected a single env system account, got %+v", cfg.Notifx.Accounts)
	}
	if cfg.Notifx.Accounts[0].HourlyLimit != 500 {
		t.Fatalf("expected hourly limit default 500, got %d", cfg.Notifx.Accounts[0].HourlyLimit)
	}
}

func TestLoadLegacyBatchSizeVariable(t *testing.T) {
	t.Setenv("EMAIL_BATCH_SIZE", "35")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MailQueue.DefaultBatchSize != 35 {
		t.Fatalf("expected 35, got %d", cfg.MailQueue.DefaultBatchSize)
	}
}

func TestLoadAccountsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	body := `accounts:
  - name: system
    type: system
    email: noreply@example.org
    smtp:
      host: smtp.example.org
      port: 587
      idle_timeout: 45s
  - name: bulk-1
    type: bulk
    email: news1@example.org
    hourly_limit: 50
    smtp:
      host: smtp.example.org
      port: 587
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NOTIFX_ACCOUNTS_FILE", path)
	t.Setenv("NOTIFX_PROVIDER", "smtp")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	accounts := cfg.Notifx.Accounts
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	if accounts[0].SMTP.IdleTimeout != 45*time.Second {
		t.Fatalf("expected idle timeout 45s, got %s", accounts[0].SMTP.IdleTimeout)
	}
	if accounts[1].HourlyLimit != 50 || accounts[0].HourlyLimit != 500 {
		t.Fatalf("unexpected hourly limits: %d, %d", accounts[0].HourlyLimit, accounts[1].HourlyLimit)
	}
	if accounts[1].FromName != "Mailroom" {
		t.Fatalf("expected from name default, got %q", accounts[1].FromName)
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	t.Setenv("NOTIFX_PROVIDER", "carrier-pigeon")

	_, err := config.Load()
	if !errx.IsCode(err, config.ErrInvalid) {
		t.Fatalf("expected CONFIG_INVALID, got %v", err)
	}
}

func TestValidateRejectsUnknownRetryPolicy(t *testing.T) {
	t.Setenv("MAILQ_RETRY_POLICY", "forever")

	_, err := config.Load()
	if !errx.IsCode(err, config.ErrInvalid) {
		t.Fatalf("expected CONFIG_INVALID, got %v", err)
	}
}

func TestValidateRejectsLeaseShorterThanBatchDrain(t *testing.T) {
	t.Setenv("NOTIFX_PROVIDER", "console")
	t.Setenv("MAILQ_MAX_BATCH_SIZE", "100")
	t.Setenv("MAILQ_CONCURRENCY", "5")
	t.Setenv("NOTIFX_SEND_TIMEOUT", "30s")

	// 20 rounds of 30s plus the margin.
	t.Setenv("MAILQ_CLAIM_LEASE", "5m")
	if _, err := config.Load(); !errx.IsCode(err, config.ErrInvalid) {
		t.Fatalf("expected CONFIG_INVALID for a 5m lease, got %v", err)
	}

	t.Setenv("MAILQ_CLAIM_LEASE", "11m")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.MailQueue.MinClaimLease(cfg.Notifx.SendTimeout); got != 11*time.Minute {
		t.Fatalf("expected 11m floor, got %s", got)
	}

	t.Setenv("MAILQ_CLAIM_LEASE", "0")
	if _, err := config.Load(); err != nil {
		t.Fatalf("claiming disabled must load: %v", err)
	}
}

func TestLoadDefaultLeaseCoversBatch(t *testing.T) {
	t.Setenv("NOTIFX_PROVIDER", "console")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MailQueue.ClaimLease < cfg.MailQueue.MinClaimLease(cfg.Notifx.SendTimeout) {
		t.Fatalf("default lease %s shorter than batch drain", cfg.MailQueue.ClaimLease)
	}
}
