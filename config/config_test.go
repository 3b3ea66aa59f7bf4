package config

import (
	"os"
	"testing"
	"time"
)

func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("setenv %s failed: %v", key, err)
	}
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	_ = os.Unsetenv(key)
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		}
	})
}

func TestLoadRequiresMySQLDSN(t *testing.T) {
	unsetEnv(t, "MYSQL_DSN")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing MYSQL_DSN")
	}
}

func TestLoadDefaults(t *testing.T) {
	setEnv(t, "MYSQL_DSN", "root:root@tcp(localhost:3306)/billing?parseTime=true")
	unsetEnv(t, "APP_SERVICE_NAME")
	unsetEnv(t, "BILLING_DEFAULT_PROVIDER")
	unsetEnv(t, "BILLING_EVENT_CHANNEL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.App.ServiceName != "billing-service" {
		t.Fatalf("unexpected app service name: %s", cfg.App.ServiceName)
	}
	if cfg.Billing.DefaultProvider != "stripe" {
		t.Fatalf("unexpected default provider: %s", cfg.Billing.DefaultProvider)
	}
	if cfg.Redis.EventChannel != "billing.events" {
		t.Fatalf("unexpected event channel: %s", cfg.Redis.EventChannel)
	}
	if cfg.Billing.ProviderHTTPTimeout != 10*time.Second {
		t.Fatalf("unexpected provider http timeout: %v", cfg.Billing.ProviderHTTPTimeout)
	}
	if cfg.Billing.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("unexpected idempotency ttl: %v", cfg.Billing.IdempotencyTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	setEnv(t, "MYSQL_DSN", "root:root@tcp(localhost:3306)/billing?parseTime=true")
	setEnv(t, "APP_SERVICE_NAME", "billing-test")
	setEnv(t, "HTTP_PORT", "8181")
	setEnv(t, "MYSQL_MAX_OPEN_CONNS", "20")
	setEnv(t, "MYSQL_MAX_IDLE_CONNS", "8")
	setEnv(t, "MYSQL_CONN_MAX_LIFETIME_MINUTES", "40")
	setEnv(t, "REDIS_ADDR", "localhost:6379")
	setEnv(t, "BILLING_EVENT_CHANNEL", "billing.events.test")
	setEnv(t, "BILLING_DEFAULT_PROVIDER", "paypal")
	setEnv(t, "BILLING_PROVIDER_HTTP_TIMEOUT_SECONDS", "5")
	setEnv(t, "BILLING_IDEMPOTENCY_TTL_MINUTES", "90")
	setEnv(t, "BILLING_RECONCILE_STALE_AFTER_MINUTES", "13")
	setEnv(t, "BILLING_JOB_BATCH_SIZE", "99")
	setEnv(t, "BILLING_RECONCILE_INTERVAL_MINUTES", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.App.ServiceName != "billing-test" {
		t.Fatalf("unexpected app service name: %s", cfg.App.ServiceName)
	}
	if cfg.HTTP.Port != "8181" {
		t.Fatalf("unexpected http port: %s", cfg.HTTP.Port)
	}
	if cfg.MySQL.MaxOpenConns != 20 || cfg.MySQL.MaxIdleConns != 8 {
		t.Fatalf("unexpected mysql pool config: %+v", cfg.MySQL)
	}
	if cfg.MySQL.ConnMaxLifetime != 40*time.Minute {
		t.Fatalf("unexpected mysql lifetime: %v", cfg.MySQL.ConnMaxLifetime)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.EventChannel != "billing.events.test" {
		t.Fatalf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.Billing.DefaultProvider != "paypal" {
		t.Fatalf("unexpected default provider: %s", cfg.Billing.DefaultProvider)
	}
	if cfg.Billing.ProviderHTTPTimeout != 5*time.Second {
		t.Fatalf("unexpected provider http timeout: %v", cfg.Billing.ProviderHTTPTimeout)
	}
	if cfg.Billing.IdempotencyTTL != 90*time.Minute {
		t.Fatalf("unexpected idempotency ttl: %v", cfg.Billing.IdempotencyTTL)
	}
	if cfg.Billing.ReconcileStaleAfter != 13*time.Minute {
		t.Fatalf("unexpected reconcile stale after: %v", cfg.Billing.ReconcileStaleAfter)
	}
	if cfg.Billing.JobBatchSize != 99 {
		t.Fatalf("unexpected job batch size: %d", cfg.Billing.JobBatchSize)
	}
	if cfg.Jobs.ReconcileInterval != 7*time.Minute {
		t.Fatalf("unexpected reconcile interval: %v", cfg.Jobs.ReconcileInterval)
	}
}
