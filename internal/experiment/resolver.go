package experiment

import (
	"fmt"
	"hash/fnv"

	"github.com/acme/popup-campaign-engine/internal/domain"
	apperrors "github.com/acme/popup-campaign-engine/pkg/errors"
)

// bucketCount is the resolution of the hash space variants are mapped
// into. 10000 buckets keeps allocation boundaries exact to 0.01%.
const bucketCount = 10000

// Resolver deterministically assigns visitors to experiment variants.
// Assignment depends only on (experimentID, visitorID), so repeated calls
// return the same variant regardless of campaign ordering or unrelated
// configuration changes.
type Resolver struct{}

// NewResolver constructs a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the variant key the visitor is entitled to see.
func (r *Resolver) Resolve(exp domain.Experiment, visitorID string) (string, error) {
	if len(exp.Variants) == 0 {
		return "", fmt.Errorf("%w: experiment %s has no variants", apperrors.ErrValidation, exp.ID)
	}

	bucket := Bucket(exp.ID.String(), visitorID)
	bounds := cumulativeBounds(exp.Variants)
	for i, bound := range bounds {
		if bucket < bound {
			return exp.Variants[i].Key, nil
		}
	}
	// Rounding can leave the last bound fractionally short of the full
	// bucket space; the trailing buckets belong to the last variant.
	return exp.Variants[len(exp.Variants)-1].Key, nil
}

// Bucket maps (experimentID, visitorID) into [0, bucketCount).
func Bucket(experimentID, visitorID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(experimentID))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(visitorID))
	return h.Sum64() % bucketCount
}

// cumulativeBounds converts variant allocations into exclusive upper
// bucket bounds, normalizing proportionally when the sum is not 100.
func cumulativeBounds(variants []domain.Variant) []uint64 {
	total := 0
	for _, v := range variants {
		if v.TrafficAllocation > 0 {
			total += v.TrafficAllocation
		}
	}
	if total == 0 {
		// No usable allocations: split evenly.
		bounds := make([]uint64, len(variants))
		for i := range variants {
			bounds[i] = uint64((i + 1) * bucketCount / len(variants))
		}
		return bounds
	}

	bounds := make([]uint64, len(variants))
	acc := 0
	for i, v := range variants {
		alloc := v.TrafficAllocation
		if alloc < 0 {
			alloc = 0
		}
		acc += alloc
		bounds[i] = uint64(acc * bucketCount / total)
	}
	return bounds
}
