package handler

import "vitalis/internal/retention/models"

// UpdatePolicyRequest changes one policy field. Value is validated by the
// service against the field's type.
type UpdatePolicyRequest struct {
	Field string `json:"field" validate:"required"`
	Value any    `json:"value"`
}

type ReviewRequest struct {
	Decision string  `json:"decision" validate:"required,oneof=deleted retained"`
	Notes    *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// ScanResponse keeps the shape dashboards already consume and adds the
// per-policy detail.
type ScanResponse struct {
	Success         bool                   `json:"success"`
	TotalFlagged    int                    `json:"totalFlagged"`
	Message         string                 `json:"message"`
	PoliciesScanned int                    `json:"policiesScanned"`
	Skipped         []models.DataType      `json:"skipped"`
	Failures        []models.PolicyFailure `json:"failures"`
}

func toScanResponse(result *models.ScanResult) ScanResponse {
	skipped := result.Skipped
	if skipped == nil {
		skipped = []models.DataType{}
	}
	failures := result.Failures
	if failures == nil {
		failures = []models.PolicyFailure{}
	}
	return ScanResponse{
		Success:         !result.Partial(),
		TotalFlagged:    result.TotalFlagged,
		Message:         scanMessage(result),
		PoliciesScanned: result.PoliciesScanned,
		Skipped:         skipped,
		Failures:        failures,
	}
}
