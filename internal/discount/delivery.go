package discount

import "github.com/acme/popup-campaign-engine/internal/domain"

// RewardView is what the caller is allowed to see of an issued discount.
// DeliveryMode governs presentation only; the stored lead always carries
// the real code.
type RewardView struct {
	DeliveryMode domain.DeliveryMode
	Code         string
	// AutoApply tells the client to attempt silent application at
	// checkout instead of showing a code.
	AutoApply bool
	// Pending is set when the code could not be issued yet; the client
	// shows a "check your email" style message and the lead is retried.
	Pending bool
}

// ShapeReward builds the caller-visible view of an issuance result. The
// switch over DeliveryMode is exhaustive; unknown modes fall back to
// revealing the code, which is the platform's oldest behavior.
func ShapeReward(mode domain.DeliveryMode, result *IssueResult) RewardView {
	view := RewardView{DeliveryMode: mode}
	if result == nil || result.Code == "" {
		view.Pending = true
		return view
	}

	switch mode {
	case domain.DeliveryAutoApplyOnly:
		view.AutoApply = true
	case domain.DeliveryShowCode, domain.DeliveryAuthorizedOnly:
		view.Code = result.Code
	default:
		view.Code = result.Code
	}
	return view
}
