package models

import id "vitalis/pkg/domain"

// ScanResult summarises one retention scan. TotalFlagged counts flags created
// by this run, including those from policies that later failed.
type ScanResult struct {
	TotalFlagged    int             `json:"totalFlagged"`
	PoliciesScanned int             `json:"policiesScanned"`
	Skipped         []DataType      `json:"skipped"`
	Failures        []PolicyFailure `json:"failures"`
}

// PolicyFailure reports a policy whose scan stopped early.
type PolicyFailure struct {
	PolicyID id.PolicyID `json:"policyId"`
	DataType DataType    `json:"dataType"`
	Flagged  int         `json:"flagged"`
	Error    string      `json:"error"`
}

// Partial reports whether any policy failed.
func (r ScanResult) Partial() bool {
	return len(r.Failures) > 0
}

// Summary is the audit metadata for the run.
func (r ScanResult) Summary() map[string]any {
	failed := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		failed = append(failed, string(f.DataType))
	}
	skipped := make([]string, 0, len(r.Skipped))
	for _, s := range r.Skipped {
		skipped = append(skipped, string(s))
	}
	return map[string]any{
		"totalFlagged":    r.TotalFlagged,
		"policiesScanned": r.PoliciesScanned,
		"skipped":         skipped,
		"failedPolicies":  failed,
	}
}
