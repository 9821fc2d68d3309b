package export

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"vitalis/internal/platform/metrics"
	id "vitalis/pkg/domain"
	dErrors "vitalis/pkg/domain-errors"
	"vitalis/pkg/platform/audit"
	"vitalis/pkg/requestcontext"
)

var tracer = otel.Tracer("vitalis/internal/export")

type Format string

const (
	FormatStructured Format = "structured"
	FormatDocument   Format = "document"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatStructured, FormatDocument:
		return Format(s), nil
	case "":
		return FormatStructured, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "format must be 'structured' or 'document'")
	}
}

// Export is a rendered artifact. Complete is false whenever a domain could
// not be read; such an export lists the domains in Failures.
type Export struct {
	Filename    string
	ContentType string
	Body        []byte
	// Checksum is the hex BLAKE2b-256 digest of Body.
	Checksum string
	Complete bool
	Failures []DomainFailure
}

type DomainFailure struct {
	Domain string `json:"domain"`
	Error  string `json:"error"`
}

type AuditPublisher interface {
	Record(ctx context.Context, actorID id.UserID, role id.Role, action audit.Action, targetEntity, targetID string, metadata map[string]any)
}

type Service struct {
	domains     []Domain
	logger      *slog.Logger
	audit       AuditPublisher
	metrics     *metrics.Metrics
	timeout     time.Duration
	previewRows int
	partial     bool
	compress    bool
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTimeout bounds the whole fan-out. Zero leaves only the caller's deadline.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

func WithPreviewRows(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.previewRows = n
		}
	}
}

// WithPartialResults makes a failing domain a reported gap instead of aborting
// the export.
func WithPartialResults(enabled bool) Option {
	return func(s *Service) {
		s.partial = enabled
	}
}

func New(domains []Domain, opts ...Option) (*Service, error) {
	if len(domains) == 0 {
		return nil, errors.New("at least one export domain is required")
	}
	s := &Service{
		domains:     domains,
		logger:      slog.Default(),
		previewRows: 50,
		compress:    true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ExportUser reads every domain for userID in parallel and renders the result.
func (s *Service) ExportUser(ctx context.Context, userID id.UserID, format string) (*Export, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "export.ExportUser")
	defer span.End()
	span.SetAttributes(attribute.String("export.format", string(f)))
	start := time.Now()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	results, failures, err := s.gather(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gather")
		s.metrics.ObserveExport(string(f), "failed", time.Since(start))
		s.logger.ErrorContext(ctx, "export failed",
			"user_id", userID,
			"format", f,
			"error", err,
		)
		return nil, err
	}

	now := requestcontext.Now(ctx)
	exp := &Export{Complete: len(failures) == 0, Failures: failures}
	switch f {
	case FormatDocument:
		exp.Body, err = renderDocument(userID.String(), now, s.sections(results), s.unavailableTitles(failures), s.previewRows, s.compress)
		exp.ContentType = "application/pdf"
		exp.Filename = filename(now, "pdf")
	default:
		exp.Body, err = s.structured(userID, now, results, failures)
		exp.ContentType = "application/json"
		exp.Filename = filename(now, "json")
	}
	if err != nil {
		s.metrics.ObserveExport(string(f), "failed", time.Since(start))
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to render export")
	}
	sum := blake2b.Sum256(exp.Body)
	exp.Checksum = hex.EncodeToString(sum[:])

	outcome := "complete"
	if !exp.Complete {
		outcome = "partial"
	}
	span.SetAttributes(attribute.Bool("export.complete", exp.Complete))
	s.metrics.ObserveExport(string(f), outcome, time.Since(start))
	s.logger.InfoContext(ctx, "user data exported",
		"user_id", userID,
		"format", f,
		"bytes", len(exp.Body),
		"complete", exp.Complete,
	)
	s.record(ctx, userID, f, exp)
	return exp, nil
}

// gather fetches all domains concurrently. In strict mode the first failure
// cancels the rest and is returned; in partial mode failures are collected.
func (s *Service) gather(ctx context.Context, userID id.UserID) ([][]Row, []DomainFailure, error) {
	results := make([][]Row, len(s.domains))
	errs := make([]error, len(s.domains))

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range s.domains {
		g.Go(func() error {
			rows, err := d.Source.FetchByOwner(gctx, userID)
			if err != nil {
				s.metrics.IncrementExportDomainFailure(d.Key)
				if s.partial {
					errs[i] = err
					return nil
				}
				return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("failed to read %s", d.Key))
			}
			if rows == nil {
				rows = []Row{}
			}
			results[i] = rows
			return nil
		})
	}
	werr := g.Wait()

	// A cancelled or timed-out export is never returned, even if every
	// fetch happened to finish.
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, dErrors.Wrap(err, dErrors.CodeTimeout, "export timed out")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "export cancelled")
	}
	if werr != nil {
		return nil, nil, werr
	}

	var failures []DomainFailure
	for i, err := range errs {
		if err != nil {
			s.logger.WarnContext(ctx, "export domain unavailable",
				"domain", s.domains[i].Key,
				"error", err,
			)
			failures = append(failures, DomainFailure{Domain: s.domains[i].Key, Error: "unavailable"})
		}
	}
	return results, failures, nil
}

func (s *Service) structured(userID id.UserID, now time.Time, results [][]Row, failures []DomainFailure) ([]byte, error) {
	doc := map[string]any{
		"exportDate": now.UTC().Format(time.RFC3339Nano),
		"userId":     userID.String(),
	}
	for i, d := range s.domains {
		rows := results[i]
		switch {
		case rows == nil:
			doc[d.Key] = nil
		case d.Single && len(rows) == 0:
			doc[d.Key] = nil
		case d.Single:
			doc[d.Key] = rows[0]
		default:
			doc[d.Key] = rows
		}
	}
	if len(failures) > 0 {
		doc["incompleteDomains"] = failures
	}
	return json.MarshalIndent(doc, "", "  ")
}

func (s *Service) sections(results [][]Row) []section {
	var out []section
	for i, d := range s.domains {
		if len(results[i]) == 0 {
			continue
		}
		out = append(out, section{domain: d, rows: results[i]})
	}
	return out
}

// unavailableTitles maps failed domain keys to their display titles.
func (s *Service) unavailableTitles(failures []DomainFailure) []string {
	if len(failures) == 0 {
		return nil
	}
	titles := make(map[string]string, len(s.domains))
	for _, d := range s.domains {
		titles[d.Key] = d.Title
	}
	out := make([]string, 0, len(failures))
	for _, fl := range failures {
		if t, ok := titles[fl.Domain]; ok && t != "" {
			out = append(out, t)
			continue
		}
		out = append(out, fl.Domain)
	}
	return out
}

func (s *Service) record(ctx context.Context, userID id.UserID, f Format, exp *Export) {
	if s.audit == nil {
		return
	}
	role := requestcontext.Role(ctx)
	if role == "" {
		role = id.RolePatient
	}
	metadata := map[string]any{
		"format":   string(f),
		"complete": exp.Complete,
		"checksum": exp.Checksum,
	}
	if len(exp.Failures) > 0 {
		failed := make([]string, len(exp.Failures))
		for i, fl := range exp.Failures {
			failed[i] = fl.Domain
		}
		metadata["failed_domains"] = failed
	}
	s.audit.Record(ctx, userID, role, audit.ActionExportUserData, audit.EntityDataExport, userID.String(), metadata)
}

func filename(now time.Time, ext string) string {
	return fmt.Sprintf("health-records-%s.%s", now.UTC().Format("2006-01-02"), ext)
}
