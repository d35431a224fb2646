package catalog

import (
	"context"
	"strings"
	"testing"

	"edterm.com/edterm/internal/config"
	"edterm.com/edterm/internal/database"
	"edterm.com/edterm/internal/ingest"
)

func newTestConfig() *config.Config {
	cfg := config.New()
	cfg.Set("MEILI_HOST", "")
	cfg.Set("MEILI_MASTER_KEY", "")
	cfg.Set("RESEND_API_KEY", "")
	return cfg
}

func TestSearchUnavailableWithoutConfig(t *testing.T) {
	cfg := newTestConfig()
	cat, err := NewForConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewForConfig: %v", err)
	}
	defer cat.Close()

	for name, fn := range map[string]func() error{
		"Syncer":       func() error { _, err := cat.Syncer(); return err },
		"Bootstrapper": func() error { _, err := cat.Bootstrapper(); return err },
		"Ingester":     func() error { _, err := cat.Ingester(ingest.Options{}); return err },
	} {
		err := fn()
		if err == nil || !strings.Contains(err.Error(), "MEILI_HOST") {
			t.Errorf("%s err = %v, want missing MEILI_HOST", name, err)
		}
	}
	if cat.Mailer() == nil || cat.Mailer().Enabled() {
		t.Error("mailer should be present and disabled without RESEND_API_KEY")
	}
}

func TestSearchAvailableWithConfig(t *testing.T) {
	cfg := newTestConfig()
	cfg.Set("MEILI_HOST", "http://127.0.0.1:7700")
	cfg.Set("MEILI_MASTER_KEY", "masterKey")

	cat := New(database.NewClient(nil), cfg)
	if _, err := cat.Search(); err == nil {
		t.Error("New without WithSearch should not have a search client")
	}

	cat, err := NewForConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewForConfig: %v", err)
	}
	defer cat.Close()
	if _, err := cat.Ingester(ingest.Options{}); err != nil {
		t.Errorf("Ingester: %v", err)
	}
}

func TestPingWithoutPool(t *testing.T) {
	cat := New(database.NewClient(nil), newTestConfig())
	if err := cat.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error without a pool")
	}
}

func TestSearchErrorNamesMissingKey(t *testing.T) {
	cfg := newTestConfig()
	cfg.Set("MEILI_HOST", "http://127.0.0.1:7700")

	cat, err := NewForConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewForConfig: %v", err)
	}
	defer cat.Close()

	_, err = cat.Syncer()
	if err == nil {
		t.Fatal("Syncer should fail without MEILI_MASTER_KEY")
	}
	if msg := err.Error(); !strings.Contains(msg, "MEILI_MASTER_KEY") || strings.Contains(msg, "MEILI_HOST") {
		t.Errorf("err = %q, want only MEILI_MASTER_KEY named", msg)
	}
}
