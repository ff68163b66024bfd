// Package pipeline is the content-generation state machine: dispatch due
// users, page their starred repositories into staging, draw a fair sample
// against cycle state, persist the reminder, notify, clean up.
package pipeline

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand"

	"starminder/internal/models"
)

// Selection is the outcome of one sampling pass over a user's staged records.
type Selection struct {
	// Records are the sampled staged rows, in draw order.
	Records []models.TempStar

	// CutoffIndex is the position within Records at which the next cycle
	// begins. It can exceed len(Records) when unshown records remain.
	CutoffIndex int

	// CycleComplete is true when this selection exactly exhausts the
	// remaining unshown pool.
	CycleComplete bool
}

// ComputeSelection draws a bounded uniform random sample from the staged
// records, preferring records not shown during the current cycle. When fewer
// unshown records remain than maxEntries, the cycle resets and the whole
// staged set becomes the pool again.
//
// Records are deduplicated by provider ID first; duplicates across pages are
// expected and harmless. Archive filtering is the caller's job.
func ComputeSelection(records []models.TempStar, shown map[string]bool, maxEntries int, rng *rand.Rand) Selection {
	distinct := dedupeByProviderID(records)

	unshown := make([]models.TempStar, 0, len(distinct))
	for _, rec := range distinct {
		if !shown[rec.ProviderID] {
			unshown = append(unshown, rec)
		}
	}

	pool := distinct
	if len(unshown) >= maxEntries {
		pool = unshown
	}
	totalAvailable := len(distinct)

	sampleSize := maxEntries
	if len(pool) < sampleSize {
		sampleSize = len(pool)
	}

	selected := make([]models.TempStar, 0, sampleSize)
	for _, i := range rng.Perm(len(pool))[:sampleSize] {
		selected = append(selected, pool[i])
	}

	cutoffIndex := totalAvailable - len(shown)

	return Selection{
		Records:       selected,
		CutoffIndex:   cutoffIndex,
		CycleComplete: cutoffIndex == sampleSize,
	}
}

func dedupeByProviderID(records []models.TempStar) []models.TempStar {
	seen := make(map[string]bool, len(records))
	distinct := make([]models.TempStar, 0, len(records))
	for _, rec := range records {
		if seen[rec.ProviderID] {
			continue
		}
		seen[rec.ProviderID] = true
		distinct = append(distinct, rec)
	}
	return distinct
}

// NewRand returns a math/rand source seeded from the OS entropy pool, so
// samples are unpredictable across runs while tests can inject a fixed seed.
func NewRand() *rand.Rand {
	var seed [8]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		panic("failed to read entropy for sampler seed: " + err.Error())
	}
	return rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(seed[:]))))
}
