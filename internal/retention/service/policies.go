package service

import (
	"context"
	"errors"

	"vitalis/internal/retention/models"
	id "vitalis/pkg/domain"
	dErrors "vitalis/pkg/domain-errors"
	"vitalis/pkg/platform/audit"
	"vitalis/pkg/platform/changefeed"
	"vitalis/pkg/requestcontext"
)

// PolicyService lists and updates retention policies.
type PolicyService struct {
	deps
	policies PolicyStore
}

func NewPolicyService(policies PolicyStore, opts ...Option) (*PolicyService, error) {
	if policies == nil {
		return nil, errors.New("policy store is required")
	}
	return &PolicyService{deps: newDeps(opts), policies: policies}, nil
}

// List returns every policy ordered by data type.
func (s *PolicyService) List(ctx context.Context) ([]*models.Policy, error) {
	policies, err := s.policies.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list retention policies")
	}
	return policies, nil
}

// Update changes one field of a policy. The field and value are validated
// before the store is touched.
func (s *PolicyService) Update(ctx context.Context, policyID id.PolicyID, field string, value any) (*models.Policy, error) {
	if policyID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "policy id is required")
	}
	f, v, err := models.ParsePolicyUpdate(field, value)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	policy, err := s.policies.Execute(ctx, policyID,
		func(*models.Policy) error { return nil },
		func(p *models.Policy) { p.ApplyUpdate(f, v, now) },
	)
	if err != nil {
		return nil, storeErr(err, "retention policy not found", "failed to update retention policy")
	}

	s.logger.InfoContext(ctx, "retention policy updated",
		"policy_id", policy.ID,
		"data_type", policy.DataType,
		"field", f,
	)
	s.record(ctx, audit.ActionUpdateRetentionPolicy, audit.EntityRetentionPolicy, policy.ID.String(), map[string]any{
		"field": string(f),
		"value": v,
	})
	s.notify(ctx, changefeed.TopicRetentionPolicies, "updated", policy.ID.String())
	return policy, nil
}
