package discount

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/popup-campaign-engine/internal/commerce"
	"github.com/acme/popup-campaign-engine/internal/domain"
	"github.com/acme/popup-campaign-engine/internal/repository"
)

type fakeLeadRepo struct {
	byKey map[domain.LeadKey]*domain.Lead
	// forceConflictOnce simulates losing the unique-key race: the first
	// Create fails with ErrConflict after the "winner" row appears.
	forceConflictOnce *domain.Lead
}

func newFakeLeadRepo() *fakeLeadRepo {
	return &fakeLeadRepo{byKey: map[domain.LeadKey]*domain.Lead{}}
}

func keyOf(l *domain.Lead) domain.LeadKey {
	return domain.LeadKey{StoreID: l.StoreID, CampaignID: l.CampaignID, Email: l.Email}
}

func (f *fakeLeadRepo) Create(_ context.Context, lead *domain.Lead) error {
	if f.forceConflictOnce != nil {
		winner := f.forceConflictOnce
		f.forceConflictOnce = nil
		f.byKey[keyOf(winner)] = winner
		return repository.ErrConflict
	}
	k := keyOf(lead)
	if _, exists := f.byKey[k]; exists {
		return repository.ErrConflict
	}
	cp := *lead
	f.byKey[k] = &cp
	return nil
}

func (f *fakeLeadRepo) GetByKey(_ context.Context, key domain.LeadKey) (*domain.Lead, error) {
	if l, ok := f.byKey[key]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeLeadRepo) AttachDiscount(_ context.Context, leadID uuid.UUID, code, discountID string) error {
	for _, l := range f.byKey {
		if l.ID == leadID {
			l.DiscountCode = &code
			l.DiscountID = &discountID
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeLeadRepo) ListPendingIssuance(_ context.Context, olderThan time.Time, limit int) ([]domain.Lead, error) {
	var out []domain.Lead
	for _, l := range f.byKey {
		if !l.HasCode() && l.CreatedAt.Before(olderThan) && len(out) < limit {
			out = append(out, *l)
		}
	}
	return out, nil
}

type fakeCommerce struct {
	calls int
	fail  bool
	code  string
}

func (f *fakeCommerce) CreateDiscount(_ context.Context, _ commerce.CreateDiscountRequest) (commerce.CreatedDiscount, error) {
	f.calls++
	if f.fail {
		return commerce.CreatedDiscount{}, errors.New("platform down")
	}
	code := f.code
	if code == "" {
		code = "SAVE-TEST"
	}
	return commerce.CreatedDiscount{Code: code, ID: "ext-1"}, nil
}

func testInput() IssueInput {
	return IssueInput{
		StoreID:    uuid.New(),
		CampaignID: uuid.New(),
		Email:      "a@b.com",
		Config:     domain.DiscountConfig{ValueType: domain.DiscountPercentage, Value: 10, DeliveryMode: domain.DeliveryShowCode},
	}
}

func TestIssueIsIdempotent(t *testing.T) {
	repo := newFakeLeadRepo()
	api := &fakeCommerce{}
	svc := NewService(repo, api, nil)
	input := testInput()

	first, err := svc.Issue(context.Background(), input)
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}
	if first.Code == "" {
		t.Fatalf("expected a code on first issue")
	}

	second, err := svc.Issue(context.Background(), input)
	if err != nil {
		t.Fatalf("second issue: %v", err)
	}

	if second.Code != first.Code {
		t.Errorf("repeat issue returned %q, want %q", second.Code, first.Code)
	}
	if api.calls != 1 {
		t.Errorf("expected exactly one external call, got %d", api.calls)
	}
	if len(repo.byKey) != 1 {
		t.Errorf("expected exactly one lead row, got %d", len(repo.byKey))
	}
}

func TestIssueEmailIsNormalized(t *testing.T) {
	repo := newFakeLeadRepo()
	api := &fakeCommerce{}
	svc := NewService(repo, api, nil)

	input := testInput()
	input.Email = "  A@B.com "
	if _, err := svc.Issue(context.Background(), input); err != nil {
		t.Fatalf("issue: %v", err)
	}

	input.Email = "a@b.com"
	if _, err := svc.Issue(context.Background(), input); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(repo.byKey) != 1 {
		t.Fatalf("case/whitespace variants must collapse to one lead, got %d", len(repo.byKey))
	}
	if api.calls != 1 {
		t.Fatalf("expected one external call, got %d", api.calls)
	}
}

func TestIssueEmptyConfigIsCaptureOnly(t *testing.T) {
	repo := newFakeLeadRepo()
	api := &fakeCommerce{code: "SAVE-BOGUS"}
	svc := NewService(repo, api, nil)

	input := testInput()
	input.Config = domain.DiscountConfig{}

	result, err := svc.Issue(context.Background(), input)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if api.calls != 0 {
		t.Fatalf("no configured discount must mean no external call, got %d", api.calls)
	}
	if result.Code != "" {
		t.Fatalf("no code must be fabricated, got %q", result.Code)
	}
	if result.Lead == nil || len(repo.byKey) != 1 {
		t.Fatalf("lead must still be captured")
	}

	// Repeat submissions stay capture-only and idempotent.
	again, err := svc.Issue(context.Background(), input)
	if err != nil {
		t.Fatalf("repeat issue: %v", err)
	}
	if api.calls != 0 || again.Code != "" {
		t.Fatalf("repeat capture must not reach the platform")
	}
	if again.Lead.ID != result.Lead.ID || len(repo.byKey) != 1 {
		t.Fatalf("repeat capture must return the existing lead")
	}
}

func TestIssueEmptyConfigRaceAdoptsWinner(t *testing.T) {
	repo := newFakeLeadRepo()
	api := &fakeCommerce{}
	svc := NewService(repo, api, nil)

	input := testInput()
	input.Config = domain.DiscountConfig{}

	winner := &domain.Lead{
		ID:         uuid.New(),
		StoreID:    input.StoreID,
		CampaignID: input.CampaignID,
		Email:      "a@b.com",
	}
	repo.forceConflictOnce = winner

	result, err := svc.Issue(context.Background(), input)
	if err != nil {
		t.Fatalf("race loser must recover: %v", err)
	}
	if result.Lead.ID != winner.ID {
		t.Fatalf("race loser must adopt the winner row")
	}
	if api.calls != 0 || len(repo.byKey) != 1 {
		t.Fatalf("capture-only race must not mint codes or duplicate rows")
	}
}

func TestIssuePlatformFailurePreservesLead(t *testing.T) {
	repo := newFakeLeadRepo()
	api := &fakeCommerce{fail: true}
	svc := NewService(repo, api, nil)
	input := testInput()

	result, err := svc.Issue(context.Background(), input)
	if err != nil {
		t.Fatalf("issue must not fail the request when the platform is down: %v", err)
	}
	if result.Code != "" {
		t.Fatalf("no code should be fabricated")
	}
	if result.Lead == nil || len(repo.byKey) != 1 {
		t.Fatalf("lead capture must survive the rewards outage")
	}
}

func TestIssueRetroactiveCompletion(t *testing.T) {
	repo := newFakeLeadRepo()
	api := &fakeCommerce{fail: true}
	svc := NewService(repo, api, nil)
	input := testInput()

	// First attempt: platform down, lead lands in the null-code state.
	if _, err := svc.Issue(context.Background(), input); err != nil {
		t.Fatalf("first issue: %v", err)
	}

	// Platform recovers; the same interaction completes issuance onto
	// the existing lead instead of duplicating it.
	api.fail = false
	result, err := svc.Issue(context.Background(), input)
	if err != nil {
		t.Fatalf("second issue: %v", err)
	}
	if result.Code == "" {
		t.Fatalf("expected retroactive issuance to produce a code")
	}
	if len(repo.byKey) != 1 {
		t.Fatalf("expected one lead row, got %d", len(repo.byKey))
	}
	if stored := repo.byKey[keyOf(result.Lead)]; !stored.HasCode() {
		t.Fatalf("code must be persisted onto the existing lead")
	}
}

func TestIssueConflictRaceFallsBackToWinner(t *testing.T) {
	repo := newFakeLeadRepo()
	api := &fakeCommerce{code: "SAVE-LOSER"}
	svc := NewService(repo, api, nil)
	input := testInput()

	winnerCode := "SAVE-WINNER"
	winner := &domain.Lead{
		ID:           uuid.New(),
		StoreID:      input.StoreID,
		CampaignID:   input.CampaignID,
		Email:        "a@b.com",
		DiscountCode: &winnerCode,
	}
	repo.forceConflictOnce = winner

	result, err := svc.Issue(context.Background(), input)
	if err != nil {
		t.Fatalf("race loser must recover, got error: %v", err)
	}
	if result.Code != winnerCode {
		t.Errorf("race loser must return the winner's code, got %q", result.Code)
	}
	if len(repo.byKey) != 1 {
		t.Errorf("exactly one lead row must exist after the race, got %d", len(repo.byKey))
	}
}

func TestIssueConflictRaceAttachesMintedCodeToCodelessWinner(t *testing.T) {
	repo := newFakeLeadRepo()
	api := &fakeCommerce{code: "SAVE-MINTED"}
	svc := NewService(repo, api, nil)
	input := testInput()

	winner := &domain.Lead{
		ID:         uuid.New(),
		StoreID:    input.StoreID,
		CampaignID: input.CampaignID,
		Email:      "a@b.com",
	}
	repo.forceConflictOnce = winner

	result, err := svc.Issue(context.Background(), input)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if result.Code != "SAVE-MINTED" {
		t.Errorf("minted code must not be discarded, got %q", result.Code)
	}
	stored := repo.byKey[keyOf(winner)]
	if !stored.HasCode() || *stored.DiscountCode != "SAVE-MINTED" {
		t.Errorf("minted code must be attached to the winner row")
	}
}

func TestTierValue(t *testing.T) {
	cfg := domain.DiscountConfig{
		Value: 5,
		Tiers: []domain.DiscountTier{
			{MinSubtotal: 0, Value: 5},
			{MinSubtotal: 50, Value: 10},
			{MinSubtotal: 100, Value: 15},
		},
	}

	cases := []struct {
		subtotal *float64
		want     float64
	}{
		{nil, 5}, // unknown subtotal defaults to the first tier
		{f(10), 5},
		{f(50), 10},
		{f(99.99), 10},
		{f(250), 15},
	}
	for _, tc := range cases {
		if got := TierValue(cfg, tc.subtotal); got != tc.want {
			t.Errorf("TierValue(subtotal=%v) = %v, want %v", tc.subtotal, got, tc.want)
		}
	}

	untiered := domain.DiscountConfig{Value: 20}
	if got := TierValue(untiered, f(500)); got != 20 {
		t.Errorf("untiered config must use the flat value, got %v", got)
	}
}

func TestShapeReward(t *testing.T) {
	issued := &IssueResult{Code: "SAVE-X"}

	show := ShapeReward(domain.DeliveryShowCode, issued)
	if show.Code != "SAVE-X" || show.AutoApply || show.Pending {
		t.Errorf("show_code_fallback must reveal the code: %+v", show)
	}

	auto := ShapeReward(domain.DeliveryAutoApplyOnly, issued)
	if auto.Code != "" || !auto.AutoApply {
		t.Errorf("auto_apply_only must withhold the code and signal auto apply: %+v", auto)
	}

	authorized := ShapeReward(domain.DeliveryAuthorizedOnly, issued)
	if authorized.Code != "SAVE-X" {
		t.Errorf("authorized-only mode must reveal the code: %+v", authorized)
	}

	pending := ShapeReward(domain.DeliveryShowCode, &IssueResult{})
	if !pending.Pending || pending.Code != "" {
		t.Errorf("missing code must surface as pending: %+v", pending)
	}
}

func f(v float64) *float64 { return &v }
