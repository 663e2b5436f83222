package frequency

import (
	"testing"
	"time"

	"github.com/acme/popup-campaign-engine/internal/domain"
)

func TestDecideUnboundedNeverCaps(t *testing.T) {
	state := CounterState{SessionCount: 1000, DayCount: 1000, LastShownUms: time.Now().UnixMilli()}
	if !Decide(state, domain.FrequencyCapConfig{}, time.Now()) {
		t.Fatalf("campaign without cap config must never be capped")
	}
}

func TestDecideSessionCap(t *testing.T) {
	cfg := domain.FrequencyCapConfig{MaxPerSession: 2}
	now := time.Now()

	if !Decide(CounterState{SessionCount: 1}, cfg, now) {
		t.Errorf("one display of two allowed: expected allow")
	}
	if Decide(CounterState{SessionCount: 2}, cfg, now) {
		t.Errorf("session budget consumed: expected deny")
	}
	if Decide(CounterState{SessionCount: 5}, cfg, now) {
		t.Errorf("over budget: expected deny")
	}
}

func TestDecideDayCap(t *testing.T) {
	cfg := domain.FrequencyCapConfig{MaxPerDay: 3}
	now := time.Now()

	if !Decide(CounterState{DayCount: 2}, cfg, now) {
		t.Errorf("under daily budget: expected allow")
	}
	if Decide(CounterState{DayCount: 3}, cfg, now) {
		t.Errorf("daily budget consumed: expected deny")
	}
}

func TestDecideCooldown(t *testing.T) {
	cfg := domain.FrequencyCapConfig{CooldownSeconds: 60}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	recent := CounterState{LastShownUms: now.Add(-30 * time.Second).UnixMilli()}
	if Decide(recent, cfg, now) {
		t.Errorf("30s elapsed of 60s cooldown: expected deny")
	}

	elapsed := CounterState{LastShownUms: now.Add(-61 * time.Second).UnixMilli()}
	if !Decide(elapsed, cfg, now) {
		t.Errorf("cooldown elapsed: expected allow")
	}

	never := CounterState{}
	if !Decide(never, cfg, now) {
		t.Errorf("never shown: cooldown must not apply")
	}
}

func TestDecideDimensionsAreIndependent(t *testing.T) {
	cfg := domain.FrequencyCapConfig{MaxPerSession: 5, MaxPerDay: 10, CooldownSeconds: 30}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Any single exhausted dimension denies, regardless of the others.
	cases := []CounterState{
		{SessionCount: 5},
		{DayCount: 10},
		{LastShownUms: now.Add(-5 * time.Second).UnixMilli()},
	}
	for i, state := range cases {
		if Decide(state, cfg, now) {
			t.Errorf("case %d: expected deny", i)
		}
	}

	ok := CounterState{SessionCount: 4, DayCount: 9, LastShownUms: now.Add(-31 * time.Second).UnixMilli()}
	if !Decide(ok, cfg, now) {
		t.Errorf("all dimensions within budget: expected allow")
	}
}

func TestDecideMonotonicUnderRepeatedDisplays(t *testing.T) {
	cfg := domain.FrequencyCapConfig{MaxPerSession: 3}
	now := time.Now()

	denied := false
	for shown := int64(0); shown < 10; shown++ {
		allowed := Decide(CounterState{SessionCount: shown}, cfg, now)
		if denied && allowed {
			t.Fatalf("allow flipped back after being denied at count %d", shown)
		}
		if !allowed {
			denied = true
		}
	}
	if !denied {
		t.Fatalf("cap never engaged")
	}
}
