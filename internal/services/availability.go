package services

import (
	"context"
	"log"
	"time"

	"krayotmarket/internal/storage"
)

const availabilityKey = "krayot-market-availability"

// AvailabilitySource probes delivery capacity on the backend.
type AvailabilitySource interface {
	ExpressAvailable(ctx context.Context) (bool, error)
	DeliverySlotCounts(ctx context.Context) (map[string]int, error)
}

// AvailabilitySnapshot is the express flag plus per-slot order counts.
type AvailabilitySnapshot struct {
	Express bool           `json:"express_available"`
	Counts  map[string]int `json:"slot_counts"`
}

// Availability caches probe results for a short time so rapid navigation
// does not refetch.
type Availability struct {
	src   AvailabilitySource
	store storage.Store
	ttl   time.Duration
}

func NewAvailability(src AvailabilitySource, store storage.Store, ttl time.Duration) *Availability {
	return &Availability{src: src, store: store, ttl: ttl}
}

// Snapshot returns cached data when fresh. Probe failures degrade to no
// express delivery and empty counts and are not cached.
func (a *Availability) Snapshot(ctx context.Context) AvailabilitySnapshot {
	var snap AvailabilitySnapshot
	if a.ttl > 0 && storage.LoadJSON(ctx, a.store, availabilityKey, &snap) {
		if snap.Counts == nil {
			snap.Counts = map[string]int{}
		}
		return snap
	}

	snap = AvailabilitySnapshot{Counts: map[string]int{}}
	failed := false

	express, err := a.src.ExpressAvailable(ctx)
	if err != nil {
		log.Printf("Availability.Snapshot - Express probe failed: %v", err)
		failed = true
	} else {
		snap.Express = express
	}

	counts, err := a.src.DeliverySlotCounts(ctx)
	if err != nil {
		log.Printf("Availability.Snapshot - Slot count probe failed: %v", err)
		failed = true
	} else {
		snap.Counts = counts
	}

	if !failed && a.ttl > 0 {
		if err := storage.SaveJSON(ctx, a.store, availabilityKey, snap, a.ttl); err != nil {
			log.Printf("Availability.Snapshot - Error caching snapshot: %v", err)
		}
	}
	return snap
}

// Invalidate drops the cache, e.g. after an order took a slot.
func (a *Availability) Invalidate(ctx context.Context) {
	if err := a.store.Delete(ctx, availabilityKey); err != nil {
		log.Printf("Availability.Invalidate - Error: %v", err)
	}
}
