package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/masterparty/platform/services/catalog-service/internal/catalog"
)

func TestMalformedIDsAreNotFound(t *testing.T) {
	// No pool: a malformed id must be answered before any query runs.
	r := &Repository{}
	ctx := context.Background()
	const bad = "abc"

	if _, err := r.GetService(ctx, bad); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("GetService: expected ErrNotFound, got %v", err)
	}
	if err := r.UpdateService(ctx, catalog.Service{ID: bad}); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("UpdateService: expected ErrNotFound, got %v", err)
	}
	if err := r.SetServiceActive(ctx, bad, "u-1", false); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("SetServiceActive: expected ErrNotFound, got %v", err)
	}
	if err := r.DeleteService(ctx, bad, "u-1"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("DeleteService: expected ErrNotFound, got %v", err)
	}
	_, err := r.UpdateUnavailableDates(ctx, bad, "u-1", func(d []string) ([]string, error) { return d, nil })
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("UpdateUnavailableDates: expected ErrNotFound, got %v", err)
	}
	if _, err := r.GetProvider(ctx, bad); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("GetProvider: expected ErrNotFound, got %v", err)
	}
	if blocked, err := r.ServiceBlockedSlots(ctx, bad, "2030-06-01"); err != nil || len(blocked) != 0 {
		t.Fatalf("ServiceBlockedSlots: expected no slots, got %v %v", blocked, err)
	}
}

func TestValidID(t *testing.T) {
	for id, want := range map[string]bool{
		"7f1c2e9a-3b4d-4c5e-8f60-718293a4b5c6": true,
		"abc":                                  false,
		"":                                     false,
		"7f1c2e9a-3b4d-4c5e-8f60":              false,
	} {
		if got := validID(id); got != want {
			t.Errorf("validID(%q) = %v, want %v", id, got, want)
		}
	}
}
