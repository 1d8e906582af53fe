package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryProviderSetGet(t *testing.T) {
	ctx := context.Background()
	provider := NewMemoryProvider()

	if _, err := provider.Get(ctx, "trace:abc"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}

	if err := provider.Set(ctx, "trace:abc", []byte("payload"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, err := provider.Get(ctx, "trace:abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(value) != "payload" {
		t.Fatalf("expected payload, got %q", value)
	}
}

func TestMemoryProviderTTLExpiry(t *testing.T) {
	ctx := context.Background()
	provider := NewMemoryProvider()

	if err := provider.Set(ctx, "trace:short", []byte("x"), 10*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := provider.Get(ctx, "trace:short"); err != nil {
		t.Fatalf("expected hit before expiry, got %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if _, err := provider.Get(ctx, "trace:short"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after expiry, got %v", err)
	}
}

func TestMemoryProviderDel(t *testing.T) {
	ctx := context.Background()
	provider := NewMemoryProvider()

	if err := provider.Set(ctx, "trace:abc", []byte("payload"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := provider.Del(ctx, "trace:abc"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := provider.Get(ctx, "trace:abc"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

func TestMemoryProviderCopiesValues(t *testing.T) {
	ctx := context.Background()
	provider := NewMemoryProvider()

	original := []byte("payload")
	if err := provider.Set(ctx, "trace:abc", original, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	original[0] = 'X'

	value, err := provider.Get(ctx, "trace:abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(value) != "payload" {
		t.Fatalf("stored value aliased caller slice: %q", value)
	}
}

func TestNoopProviderAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	var provider Provider = NoopProvider{}

	if err := provider.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := provider.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss from noop cache, got %v", err)
	}
}
