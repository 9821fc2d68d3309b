package models

import (
	"fmt"
	"math"
	"time"

	id "vitalis/pkg/domain"
	dErrors "vitalis/pkg/domain-errors"
)

// Policy is the retention configuration for one data type. Policies are
// created by seeding and changed by administrators; they are never deleted.
type Policy struct {
	ID            id.PolicyID `json:"id"`
	DataType      DataType    `json:"data_type"`
	RetentionDays int         `json:"retention_days"`
	IsActive      bool        `json:"is_active"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// PolicyField names a field an administrator may change.
type PolicyField string

const (
	PolicyFieldRetentionDays PolicyField = "retention_days"
	PolicyFieldIsActive      PolicyField = "is_active"
)

func NewPolicy(policyID id.PolicyID, dataType DataType, retentionDays int, active bool, now time.Time) (*Policy, error) {
	if !dataType.IsKnown() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown data type: "+string(dataType))
	}
	if retentionDays <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "retention_days must be positive")
	}
	return &Policy{
		ID:            policyID,
		DataType:      dataType,
		RetentionDays: retentionDays,
		IsActive:      active,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Cutoff returns the instant before which records exceed the retention window.
func (p *Policy) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -p.RetentionDays)
}

// ParsePolicyUpdate validates a raw field/value pair, as decoded from JSON,
// before any mutation happens.
func ParsePolicyUpdate(field string, value any) (PolicyField, any, error) {
	switch PolicyField(field) {
	case PolicyFieldRetentionDays:
		days, ok := asInt(value)
		if !ok {
			return "", nil, dErrors.New(dErrors.CodeValidation, "retention_days must be an integer")
		}
		if days <= 0 {
			return "", nil, dErrors.New(dErrors.CodeValidation, "retention_days must be greater than zero")
		}
		return PolicyFieldRetentionDays, days, nil
	case PolicyFieldIsActive:
		active, ok := value.(bool)
		if !ok {
			return "", nil, dErrors.New(dErrors.CodeValidation, "is_active must be a boolean")
		}
		return PolicyFieldIsActive, active, nil
	case "":
		return "", nil, dErrors.New(dErrors.CodeValidation, "field is required")
	default:
		return "", nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("field %q cannot be updated", field))
	}
}

// ApplyUpdate sets a field already checked by ParsePolicyUpdate.
func (p *Policy) ApplyUpdate(field PolicyField, value any, now time.Time) {
	switch field {
	case PolicyFieldRetentionDays:
		p.RetentionDays = value.(int)
	case PolicyFieldIsActive:
		p.IsActive = value.(bool)
	}
	p.UpdatedAt = now
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// DefaultPolicies are installed on first start when no policy exists.
func DefaultPolicies(newID func() id.PolicyID, now time.Time) []*Policy {
	defaults := []struct {
		dataType DataType
		days     int
	}{
		{DataTypeGlucoseReadings, 730},
		{DataTypeMealLogs, 365},
		{DataTypeExerciseLogs, 365},
		{DataTypeMedicationLogs, 730},
		{DataTypeAppointments, 1095},
		{DataTypePrescriptions, 1825},
		{DataTypeAuditLogs, 2555},
	}
	out := make([]*Policy, 0, len(defaults))
	for _, d := range defaults {
		out = append(out, &Policy{
			ID:            newID(),
			DataType:      d.dataType,
			RetentionDays: d.days,
			IsActive:      true,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return out
}
