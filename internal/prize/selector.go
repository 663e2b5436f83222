package prize

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"

	"github.com/acme/popup-campaign-engine/internal/domain"
	apperrors "github.com/acme/popup-campaign-engine/pkg/errors"
)

// Selector performs the server-authoritative weighted draw over a
// gamified campaign's configured outcomes. The client-visible wheel
// animation is cosmetic; any prize identifier a client submits is
// ignored in favor of this result.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector constructs a selector seeded from the operating system's
// entropy source.
func NewSelector() *Selector {
	var seed int64
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err == nil {
		seed = int64(binary.LittleEndian.Uint64(buf[:]))
	}
	return &Selector{rng: rand.New(rand.NewSource(seed))}
}

// NewSelectorWithSource constructs a selector with a caller-provided
// source, used by tests that need reproducible draws.
func NewSelectorWithSource(src rand.Source) *Selector {
	return &Selector{rng: rand.New(src)}
}

// Draw picks one segment according to the configured weights. Weights
// need not sum to one; they are normalized into a cumulative
// distribution. A zero or malformed total falls back to the first
// segment so every play terminates with a concrete prize.
func (s *Selector) Draw(segments []domain.Prize) (domain.Prize, error) {
	if len(segments) == 0 {
		return domain.Prize{}, fmt.Errorf("%w: no prize segments configured", apperrors.ErrValidation)
	}

	total := 0.0
	for _, seg := range segments {
		if seg.Probability > 0 {
			total += seg.Probability
		}
	}
	if total <= 0 {
		return segments[0], nil
	}

	s.mu.Lock()
	point := s.rng.Float64() * total
	s.mu.Unlock()

	acc := 0.0
	for _, seg := range segments {
		if seg.Probability <= 0 {
			continue
		}
		acc += seg.Probability
		if point < acc {
			return seg, nil
		}
	}
	// Float accumulation can land point exactly on the upper bound.
	return segments[len(segments)-1], nil
}
