package config

import (
	"strings"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != ":8080" {
		t.Errorf("expected default port :8080, got %s", cfg.Port)
	}
	if cfg.SlotCapacity != 4 {
		t.Errorf("expected capacity 4, got %d", cfg.SlotCapacity)
	}
	if cfg.MaxSameDayMiles != 20 || cfg.MinLeadTimeHours != 2 {
		t.Errorf("unexpected same-day thresholds: %v / %d", cfg.MaxSameDayMiles, cfg.MinLeadTimeHours)
	}
	if cfg.PendingOrderTTL != 48*time.Hour {
		t.Errorf("expected 48h pending ttl, got %v", cfg.PendingOrderTTL)
	}
	if cfg.StoreDriver != DriverMongo {
		t.Errorf("expected mongo driver, got %s", cfg.StoreDriver)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SLOT_CAPACITY", "6")
	t.Setenv("PRECISION_FEE", "49.5")
	t.Setenv("PENDING_ORDER_TTL", "24h")
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("BUSINESS_TZ", "UTC")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.Port)
	}
	if cfg.SlotCapacity != 6 {
		t.Errorf("expected 6, got %d", cfg.SlotCapacity)
	}
	if cfg.PrecisionFee != 49.5 {
		t.Errorf("expected 49.5, got %v", cfg.PrecisionFee)
	}
	if cfg.PendingOrderTTL != 24*time.Hour {
		t.Errorf("expected 24h, got %v", cfg.PendingOrderTTL)
	}
	if cfg.StoreDriver != DriverMemory {
		t.Errorf("expected memory driver, got %s", cfg.StoreDriver)
	}
	if cfg.BusinessTZ != time.UTC {
		t.Errorf("expected UTC, got %v", cfg.BusinessTZ)
	}
}

func TestFromEnvCollectsErrors(t *testing.T) {
	t.Setenv("SLOT_CAPACITY", "lots")
	t.Setenv("LOCK_WAIT", "soon")
	t.Setenv("STORE_DRIVER", "postgres")

	_, err := FromEnv()
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, key := range []string{"SLOT_CAPACITY", "LOCK_WAIT", "STORE_DRIVER"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("expected error to mention %s, got %v", key, err)
		}
	}
}
