package prize

import (
	"math/rand"
	"testing"

	"github.com/acme/popup-campaign-engine/internal/domain"
)

func TestDrawDistribution(t *testing.T) {
	segments := []domain.Prize{
		{Label: "ten_off", Probability: 0.5},
		{Label: "free_shipping", Probability: 0.3},
		{Label: "try_again", Probability: 0.2},
	}

	s := NewSelectorWithSource(rand.NewSource(42))
	counts := map[string]int{}
	const n = 10000
	for i := 0; i < n; i++ {
		p, err := s.Draw(segments)
		if err != nil {
			t.Fatalf("draw: %v", err)
		}
		counts[p.Label]++
	}

	want := map[string]float64{"ten_off": 0.5, "free_shipping": 0.3, "try_again": 0.2}
	for label, expected := range want {
		got := float64(counts[label]) / n
		if got < expected-0.03 || got > expected+0.03 {
			t.Errorf("segment %s: share %.3f outside tolerance around %.2f", label, got, expected)
		}
	}
}

func TestDrawNormalizesWeightsNotSummingToOne(t *testing.T) {
	// Weights 5/3/2 must behave like 50/30/20 percent.
	segments := []domain.Prize{
		{Label: "a", Probability: 5},
		{Label: "b", Probability: 3},
		{Label: "c", Probability: 2},
	}

	s := NewSelectorWithSource(rand.NewSource(7))
	counts := map[string]int{}
	const n = 10000
	for i := 0; i < n; i++ {
		p, _ := s.Draw(segments)
		counts[p.Label]++
	}

	shareA := float64(counts["a"]) / n
	if shareA < 0.47 || shareA > 0.53 {
		t.Errorf("share of a = %.3f, want ~0.50", shareA)
	}
}

func TestDrawAllZeroProbabilitiesReturnsFirstSegment(t *testing.T) {
	segments := []domain.Prize{
		{Label: "fallback", Probability: 0},
		{Label: "never", Probability: 0},
	}

	s := NewSelector()
	for i := 0; i < 100; i++ {
		p, err := s.Draw(segments)
		if err != nil {
			t.Fatalf("draw: %v", err)
		}
		if p.Label != "fallback" {
			t.Fatalf("zero-total draw must return the first segment, got %s", p.Label)
		}
	}
}

func TestDrawNegativeWeightsAreIgnored(t *testing.T) {
	segments := []domain.Prize{
		{Label: "bad", Probability: -3},
		{Label: "good", Probability: 1},
	}

	s := NewSelectorWithSource(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		p, err := s.Draw(segments)
		if err != nil {
			t.Fatalf("draw: %v", err)
		}
		if p.Label == "bad" {
			t.Fatalf("negative-weight segment must never win")
		}
	}
}

func TestDrawEmptySegmentsErr(t *testing.T) {
	if _, err := NewSelector().Draw(nil); err == nil {
		t.Fatalf("expected error for empty segment list")
	}
}
