package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"vitalis/internal/retention/domains"
	"vitalis/internal/retention/models"
	id "vitalis/pkg/domain"
	dErrors "vitalis/pkg/domain-errors"
	"vitalis/pkg/platform/audit"
	"vitalis/pkg/platform/changefeed"
	"vitalis/pkg/requestcontext"
)

// Scanner flags records that outlived their policy's retention window.
type Scanner struct {
	deps
	policies PolicyStore
	flags    FlagStore
	adapters AdapterRegistry
	newID    func() id.FlagID
}

func NewScanner(policies PolicyStore, flags FlagStore, adapters AdapterRegistry, opts ...Option) (*Scanner, error) {
	if policies == nil {
		return nil, errors.New("policy store is required")
	}
	if flags == nil {
		return nil, errors.New("flag store is required")
	}
	if adapters == nil {
		return nil, errors.New("adapter registry is required")
	}
	return &Scanner{
		deps:     newDeps(opts),
		policies: policies,
		flags:    flags,
		adapters: adapters,
		newID:    func() id.FlagID { return id.FlagID(uuid.New()) },
	}, nil
}

// RunScan evaluates every active policy once. A policy whose domain fetch or
// flag insert fails is reported in Failures and does not stop the others.
// Only a failure to load the policies themselves is returned as an error.
func (s *Scanner) RunScan(ctx context.Context) (*models.ScanResult, error) {
	ctx, span := tracer.Start(ctx, "retention.RunScan")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveScan(time.Since(start)) }()

	policies, err := s.policies.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list policies")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load retention policies")
	}

	now := requestcontext.Now(ctx)
	result := &models.ScanResult{
		Skipped:  []models.DataType{},
		Failures: []models.PolicyFailure{},
	}
	for _, p := range policies {
		if !p.IsActive {
			continue
		}
		adapter, ok := s.adapters.Lookup(p.DataType)
		if !ok {
			s.logger.WarnContext(ctx, "no adapter for data type, skipping policy",
				"policy_id", p.ID,
				"data_type", p.DataType,
			)
			result.Skipped = append(result.Skipped, p.DataType)
			continue
		}
		result.PoliciesScanned++

		flagged, err := s.scanPolicy(ctx, p, adapter, now)
		result.TotalFlagged += flagged
		s.metrics.IncrementFlagsCreated(string(p.DataType), flagged)
		if err != nil {
			s.logger.ErrorContext(ctx, "retention scan failed for policy",
				"policy_id", p.ID,
				"data_type", p.DataType,
				"flagged", flagged,
				"error", err,
			)
			s.metrics.IncrementScanPolicyFailure(string(p.DataType))
			result.Failures = append(result.Failures, models.PolicyFailure{
				PolicyID: p.ID,
				DataType: p.DataType,
				Flagged:  flagged,
				Error:    err.Error(),
			})
		}
	}

	span.SetAttributes(
		attribute.Int("retention.flagged", result.TotalFlagged),
		attribute.Int("retention.policies_scanned", result.PoliciesScanned),
		attribute.Int("retention.failed_policies", len(result.Failures)),
	)
	if result.Partial() {
		span.SetStatus(codes.Error, "partial scan")
	}

	s.logger.InfoContext(ctx, "retention scan complete",
		"total_flagged", result.TotalFlagged,
		"policies_scanned", result.PoliciesScanned,
		"failed_policies", len(result.Failures),
	)
	s.record(ctx, audit.ActionRunRetentionCheck, audit.EntitySystem, "", result.Summary())
	if result.TotalFlagged > 0 {
		s.notify(ctx, changefeed.TopicRetentionFlags, "scanned", "")
	}
	return result, nil
}

// scanPolicy returns how many flags it created before any error.
func (s *Scanner) scanPolicy(ctx context.Context, p *models.Policy, adapter domains.Adapter, now time.Time) (int, error) {
	ctx, span := tracer.Start(ctx, "retention.scanPolicy")
	defer span.End()
	span.SetAttributes(attribute.String("retention.data_type", string(p.DataType)))

	records, err := adapter.FetchRecordsOlderThan(ctx, p.Cutoff(now))
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("fetch %s: %w", p.DataType, err)
	}

	flagged := 0
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return flagged, err
		}
		flag, err := models.NewPendingFlag(s.newID(), p.DataType, rec.ID, rec.OwnerID, now)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping record without id", "data_type", p.DataType)
			continue
		}
		created, err := s.flags.CreatePending(ctx, flag)
		if err != nil {
			span.RecordError(err)
			return flagged, fmt.Errorf("flag %s record %s: %w", p.DataType, rec.ID, err)
		}
		if created {
			flagged++
		}
	}
	return flagged, nil
}
