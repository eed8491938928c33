package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/domain"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, key := range []string{"PORT", "SERVER_PORT", "STORE_DRIVER", "SWEEP_GRACE_PERIOD", "REFUND_SHORTFALL_POLICY", "ALLOW_SORTED_ADMIN_CANCEL", "OUTBOX_POLL_INTERVAL"} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8090" {
		t.Fatalf("expected default port 8090, got %q", cfg.ServerPort)
	}
	if cfg.StoreDriver != StoreDriverPostgres {
		t.Fatalf("expected postgres driver, got %q", cfg.StoreDriver)
	}
	if cfg.SweepGracePeriod != time.Hour {
		t.Fatalf("expected 1h grace period, got %s", cfg.SweepGracePeriod)
	}
	if cfg.OutboxPollInterval != 2*time.Second {
		t.Fatalf("expected 2s outbox poll interval, got %s", cfg.OutboxPollInterval)
	}
	if cfg.RefundShortfallPolicy != RefundPolicyStrict {
		t.Fatalf("expected strict refund policy, got %q", cfg.RefundShortfallPolicy)
	}
	if cfg.AllowSortedAdminCancel {
		t.Fatalf("expected sorted admin cancel to be disabled by default")
	}
}

func TestLoadConfig_NormalizesInvalidValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "STORE_DRIVER", "Oracle")
	setEnvWithCleanup(t, "REFUND_SHORTFALL_POLICY", "lenient")
	setEnvWithCleanup(t, "SWEEP_GRACE_PERIOD", "-5m")
	setEnvWithCleanup(t, "OUTBOX_BATCH_SIZE", "0")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StoreDriver != StoreDriverPostgres {
		t.Fatalf("expected unknown driver to fall back to postgres, got %q", cfg.StoreDriver)
	}
	if cfg.RefundShortfallPolicy != RefundPolicyStrict {
		t.Fatalf("expected unknown policy to fall back to strict, got %q", cfg.RefundShortfallPolicy)
	}
	if cfg.SweepGracePeriod != 0 {
		t.Fatalf("expected negative grace to be coerced to zero, got %s", cfg.SweepGracePeriod)
	}
	if cfg.OutboxBatchSize != 50 {
		t.Fatalf("expected outbox batch size 50, got %d", cfg.OutboxBatchSize)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "9000")
	setEnvWithCleanup(t, "PORT", "9100")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9100" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_ReadsDotEnvFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "STORE_DRIVER")
	unsetEnvWithCleanup(t, "REFUND_SHORTFALL_POLICY")

	dir := t.TempDir()
	content := "STORE_DRIVER=sqlite\nREFUND_SHORTFALL_POLICY=tolerant\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StoreDriver != StoreDriverSQLite {
		t.Fatalf("expected sqlite from .env, got %q", cfg.StoreDriver)
	}
	if cfg.RefundShortfallPolicy != RefundPolicyTolerant {
		t.Fatalf("expected tolerant from .env, got %q", cfg.RefundShortfallPolicy)
	}
}

func TestClearingAccount(t *testing.T) {
	valid := uuid.New()
	tests := []struct {
		name    string
		value   string
		want    uuid.UUID
		wantErr bool
	}{
		{name: "missing", value: "", wantErr: true},
		{name: "malformed", value: "clearing-account", wantErr: true},
		{name: "nil uuid", value: uuid.Nil.String(), wantErr: true},
		{name: "valid", value: valid.String(), want: valid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Config{ClearingAccountID: tt.value}.ClearingAccount()
			if tt.wantErr {
				if !errors.Is(err, domain.ErrMissingClearingAccount) {
					t.Fatalf("expected ErrMissingClearingAccount, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
		}
	})
}
