package discount

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/popup-campaign-engine/internal/domain"
	"github.com/acme/popup-campaign-engine/internal/repository"
	"github.com/acme/popup-campaign-engine/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	lg, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return lg
}

type fakeCampaignRepo struct {
	byID map[uuid.UUID]*domain.Campaign
}

func (f *fakeCampaignRepo) Get(_ context.Context, id uuid.UUID) (*domain.Campaign, error) {
	if c, ok := f.byID[id]; ok {
		return c, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeCampaignRepo) ListActiveByStore(_ context.Context, _ uuid.UUID) ([]domain.Campaign, error) {
	return nil, nil
}

func TestRetryPendingIssuesCodesForStuckLeads(t *testing.T) {
	leads := newFakeLeadRepo()
	api := &fakeCommerce{fail: true}
	svc := NewService(leads, api, nil)

	campaign := &domain.Campaign{
		ID:       uuid.New(),
		StoreID:  uuid.New(),
		Discount: &domain.DiscountConfig{ValueType: domain.DiscountPercentage, Value: 10},
	}
	campaigns := &fakeCampaignRepo{byID: map[uuid.UUID]*domain.Campaign{campaign.ID: campaign}}

	// Capture a lead during an outage.
	input := IssueInput{
		StoreID:    campaign.StoreID,
		CampaignID: campaign.ID,
		Email:      "stuck@b.com",
		Config:     *campaign.Discount,
	}
	if _, err := svc.Issue(context.Background(), input); err != nil {
		t.Fatalf("issue during outage: %v", err)
	}
	// Backdate so it is eligible for this pass.
	for _, l := range leads.byKey {
		l.CreatedAt = time.Now().Add(-time.Hour)
	}

	api.fail = false
	lg := testLogger(t)
	r := NewReissuer(leads, campaigns, svc, lg)

	issued, err := r.RetryPending(context.Background(), time.Now().Add(-time.Minute), 10)
	if err != nil {
		t.Fatalf("retry pending: %v", err)
	}
	if issued != 1 {
		t.Fatalf("expected 1 issued code, got %d", issued)
	}

	for _, l := range leads.byKey {
		if !l.HasCode() {
			t.Fatalf("stuck lead still has no code")
		}
	}
}

func TestRetryPendingSkipsPrizeWithoutDiscount(t *testing.T) {
	leads := newFakeLeadRepo()
	api := &fakeCommerce{}
	svc := NewService(leads, api, nil)

	campaign := &domain.Campaign{
		ID:      uuid.New(),
		StoreID: uuid.New(),
		Prizes: []domain.Prize{
			{Label: "try_again", Probability: 1}, // no discount attached
		},
	}
	campaigns := &fakeCampaignRepo{byID: map[uuid.UUID]*domain.Campaign{campaign.ID: campaign}}

	label := "try_again"
	lead := &domain.Lead{
		ID:         uuid.New(),
		StoreID:    campaign.StoreID,
		CampaignID: campaign.ID,
		Email:      "none@b.com",
		PrizeLabel: &label,
		CreatedAt:  time.Now().Add(-time.Hour),
	}
	if err := leads.Create(context.Background(), lead); err != nil {
		t.Fatalf("seed lead: %v", err)
	}

	r := NewReissuer(leads, campaigns, svc, testLogger(t))
	issued, err := r.RetryPending(context.Background(), time.Now(), 10)
	if err != nil {
		t.Fatalf("retry pending: %v", err)
	}
	if issued != 0 {
		t.Fatalf("no-discount prize must not mint a code, issued %d", issued)
	}
	if api.calls != 0 {
		t.Fatalf("unexpected external call")
	}
}
