package ristretto_test

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/spawnrelay/internal/adapter/ristretto"
	"github.com/Strob0t/spawnrelay/internal/port/cache/cachetest"
)

func newCache(t *testing.T) *ristretto.Cache {
	t.Helper()
	c, err := ristretto.New(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestRistrettoCompliance(t *testing.T) {
	cachetest.RunComplianceTests(t, newCache(t))
}

func TestRistrettoTTLExpiry(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "evt.short", []byte("x"), 50*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := c.Get(ctx, "evt.short"); !found {
		t.Fatal("expected hit before expiry")
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, found, _ := c.Get(ctx, "evt.short"); !found {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("entry did not expire")
}
