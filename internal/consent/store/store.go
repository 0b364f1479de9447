// Package store persists one visitor's consent decision as two entries, a
// "decided" flag and a versioned preferences payload, written together.
//
// The store never returns substrate errors. A failed read means "no decision
// recorded" and a failed write leaves the visitor to be prompted again on the
// next load.
package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"optin/internal/consent/models"
	"optin/internal/platform/metrics"
	"optin/internal/storage"
	"optin/pkg/platform/sentinel"
	"optin/pkg/requestcontext"
)

const tracerName = "optin/internal/consent/store"

// Store is the PreferenceStore for one visitor.
type Store struct {
	substrate storage.Substrate
	logger    *slog.Logger
	metrics   *metrics.Metrics
	clock     func() time.Time
	tracer    trace.Tracer
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithClock overrides the decision timestamp source. By default the
// request-scoped time is used.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

func New(substrate storage.Substrate, opts ...Option) *Store {
	s := &Store{
		substrate: substrate,
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// HasConsent reports whether a decision was persisted.
func (s *Store) HasConsent(ctx context.Context) bool {
	ctx, span := s.tracer.Start(ctx, "PreferenceStore.HasConsent")
	defer span.End()

	flag, err := s.get(ctx, "has_consent", models.KeyConsentFlag)
	if err != nil {
		s.degrade(ctx, span, "has_consent", err)
		return false
	}
	decided := flag == models.FlagDecided
	span.SetAttributes(attribute.Bool("consent.decided", decided))
	return decided
}

// GetPreferences returns the last saved record, or the default record when
// none exists or it cannot be decoded.
func (s *Store) GetPreferences(ctx context.Context) models.ConsentRecord {
	ctx, span := s.tracer.Start(ctx, "PreferenceStore.GetPreferences")
	defer span.End()

	raw, err := s.get(ctx, "get_preferences", models.KeyPreferences)
	if err != nil {
		s.degrade(ctx, span, "get_preferences", err)
		return models.DefaultRecord()
	}
	record, err := models.DecodePayload(raw)
	if err != nil {
		s.logger.WarnContext(ctx, "stored consent preferences are malformed; using defaults",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		s.metrics.IncrementStorageFailures("decode")
		span.RecordError(err)
		return models.DefaultRecord()
	}
	return record
}

// SavePreferences writes a new decision for choice and returns the record it
// attempted to persist. Payload and flag go out in one substrate call.
func (s *Store) SavePreferences(ctx context.Context, choice models.Choice) models.ConsentRecord {
	ctx, span := s.tracer.Start(ctx, "PreferenceStore.SavePreferences",
		trace.WithAttributes(attribute.Bool("consent.analytics", choice.Analytics)))
	defer span.End()

	record := models.NewRecord(choice, s.now(ctx))
	payload, err := models.EncodePayload(record)
	if err != nil {
		s.degrade(ctx, span, "save", err)
		return record
	}

	start := time.Now()
	err = s.substrate.SetItems(ctx,
		storage.Item{Key: models.KeyPreferences, Value: payload},
		storage.Item{Key: models.KeyConsentFlag, Value: models.FlagDecided},
	)
	s.metrics.ObserveStorageLatency("save", start)
	if err != nil {
		s.degrade(ctx, span, "save", err)
	}
	return record
}

func (s *Store) get(ctx context.Context, op, key string) (string, error) {
	start := time.Now()
	defer s.metrics.ObserveStorageLatency(op, start)
	return s.substrate.GetItem(ctx, key)
}

// degrade logs and counts a substrate failure. Absent entries are the normal
// state of a first visit and are not failures.
func (s *Store) degrade(ctx context.Context, span trace.Span, op string, err error) {
	if errors.Is(err, sentinel.ErrNotFound) {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")
	s.metrics.IncrementStorageFailures(op)
	s.logger.WarnContext(ctx, "consent storage unavailable",
		"request_id", requestcontext.RequestID(ctx),
		"op", op,
		"error", err,
	)
}

func (s *Store) now(ctx context.Context) time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return requestcontext.Now(ctx)
}
