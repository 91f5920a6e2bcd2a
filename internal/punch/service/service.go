// Package service registers punches: it resolves who is punching, decides
// which punch comes next, classifies its timing and records it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	bmodels "punchclock/internal/biometric/models"
	bservice "punchclock/internal/biometric/service"
	"punchclock/internal/punch/events"
	"punchclock/internal/punch/metrics"
	"punchclock/internal/punch/models"
	"punchclock/internal/punch/rules"
	schedule "punchclock/internal/schedule/models"
	id "punchclock/pkg/domain"
	dErrors "punchclock/pkg/domain-errors"
	"punchclock/pkg/platform/sentinel"
	"punchclock/pkg/requestcontext"
)

// Store persists punches. Insert returns an error wrapping sentinel.ErrConflict
// when the employee already has a punch of that type on that date.
type Store interface {
	Insert(ctx context.Context, p models.Punch) error
	ListDay(ctx context.Context, employeeID id.EmployeeID, date time.Time) ([]models.Punch, error)
	Get(ctx context.Context, employeeID id.EmployeeID, date time.Time, t models.Type) (*models.Punch, error)
}

// Identifier resolves a face probe to the nearest enrolled employee.
type Identifier interface {
	Identify(ctx context.Context, probe bmodels.Template) (*bservice.Identification, error)
}

// Directory is the authoritative employee lookup.
type Directory interface {
	GetEmployee(ctx context.Context, employeeID id.EmployeeID) (*bmodels.Identity, error)
	FindByNationalID(ctx context.Context, normalized string) (*bmodels.Identity, error)
}

type ScheduleResolver interface {
	Resolve(ctx context.Context, employeeID id.EmployeeID, departmentID *id.DepartmentID) (*schedule.Schedule, error)
}

type ToleranceSource interface {
	ToleranceMinutes(ctx context.Context) int
}

type EventPublisher interface {
	Publish(ctx context.Context, ev events.PunchRecorded)
}

const (
	msgDuplicate       = "Punch already registered a moment ago"
	msgAlreadyRecorded = "This punch was already registered today"
	msgDayComplete     = "All punches for today are already registered"
	msgInactive        = "Employee is inactive"
	msgNoMatch         = "Employee not recognized"
)

// Service orchestrates a punch from identification to recording.
type Service struct {
	store     Store
	identify  Identifier
	directory Directory
	schedules ScheduleResolver
	tolerance ToleranceSource
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer

	location     *time.Location
	cooldown     time.Duration
	storeTimeout time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithPublisher(p EventPublisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithLocation sets the timezone that decides which calendar day a punch belongs to.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithDuplicateCooldown sets how soon a repeated scan counts as a duplicate.
func WithDuplicateCooldown(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.cooldown = d
		}
	}
}

// WithStoreTimeout bounds the store round trips of one registration.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

func New(store Store, identify Identifier, directory Directory, schedules ScheduleResolver, tolerance ToleranceSource, opts ...Option) (*Service, error) {
	switch {
	case store == nil:
		return nil, fmt.Errorf("punch store is required")
	case identify == nil:
		return nil, fmt.Errorf("identifier is required")
	case directory == nil:
		return nil, fmt.Errorf("employee directory is required")
	case schedules == nil:
		return nil, fmt.Errorf("schedule resolver is required")
	case tolerance == nil:
		return nil, fmt.Errorf("tolerance source is required")
	}
	svc := &Service{
		store:        store,
		identify:     identify,
		directory:    directory,
		schedules:    schedules,
		tolerance:    tolerance,
		publisher:    events.NopPublisher{},
		logger:       slog.Default(),
		tracer:       otel.Tracer("punchclock/punch"),
		location:     time.UTC,
		cooldown:     time.Minute,
		storeTimeout: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// attempt carries what is known about a punch before it is recorded.
type attempt struct {
	identity     *bmodels.Identity
	source       models.Source
	distance     *float64
	departmentID *id.DepartmentID
}

// IdentifyAndPunch matches probe against enrolled faces and registers the next punch for the match.
func (s *Service) IdentifyAndPunch(ctx context.Context, probe bmodels.Template, departmentID *id.DepartmentID) (*models.Outcome, error) {
	if err := probe.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "punch.IdentifyAndPunch")
	defer span.End()

	ident, err := s.identify.Identify(ctx, probe)
	if err != nil {
		return nil, err
	}
	if ident.Match == nil {
		out := &models.Outcome{Kind: models.OutcomeNoMatch, Message: msgNoMatch}
		if ident.HasDistance() {
			d := ident.BestDistance
			out.BestDistance = &d
		}
		return s.finish(ctx, span, models.SourceFace, out, start), nil
	}

	identity, err := s.lookup(ctx, func(ctx context.Context) (*bmodels.Identity, error) {
		return s.directory.GetEmployee(ctx, ident.Match.EmployeeID)
	})
	if errors.Is(err, sentinel.ErrNotFound) {
		// Cached template for an employee that no longer exists.
		return s.finish(ctx, span, models.SourceFace, &models.Outcome{Kind: models.OutcomeNoMatch, Message: msgNoMatch}, start), nil
	}
	if err != nil {
		return nil, storeError(err, "employee directory unavailable")
	}
	if !identity.Enrolled {
		// The cache still held a template the directory has since cleared.
		return s.finish(ctx, span, models.SourceFace, &models.Outcome{Kind: models.OutcomeNoMatch, Message: msgNoMatch}, start), nil
	}

	distance := ident.BestDistance
	out, err := s.register(ctx, attempt{
		identity:     identity,
		source:       models.SourceFace,
		distance:     &distance,
		departmentID: departmentID,
	})
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, span, models.SourceFace, out, start), nil
}

// PunchByCredential registers the next punch for the employee holding identifier.
// Formatting characters in identifier are ignored.
func (s *Service) PunchByCredential(ctx context.Context, identifier string, departmentID *id.DepartmentID) (*models.Outcome, error) {
	normalized := id.NormalizeIdentifier(identifier)
	if normalized == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "identifier is required")
	}
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "punch.PunchByCredential")
	defer span.End()

	identity, err := s.lookup(ctx, func(ctx context.Context) (*bmodels.Identity, error) {
		return s.directory.FindByNationalID(ctx, normalized)
	})
	if errors.Is(err, sentinel.ErrNotFound) {
		return s.finish(ctx, span, models.SourceCredential, &models.Outcome{Kind: models.OutcomeNoMatch, Message: msgNoMatch}, start), nil
	}
	if err != nil {
		return nil, storeError(err, "employee directory unavailable")
	}

	out, err := s.register(ctx, attempt{
		identity:     identity,
		source:       models.SourceCredential,
		departmentID: departmentID,
	})
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, span, models.SourceCredential, out, start), nil
}

// ListDay returns the employee's punches for the calendar day containing date.
func (s *Service) ListDay(ctx context.Context, employeeID id.EmployeeID, date time.Time) ([]models.Punch, error) {
	if employeeID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "employee_id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	punches, err := s.store.ListDay(ctx, employeeID, models.DayOf(date, s.location))
	if err != nil {
		return nil, storeError(err, "punch store unavailable")
	}
	return punches, nil
}

// lookup runs a directory read under the store timeout.
func (s *Service) lookup(ctx context.Context, read func(context.Context) (*bmodels.Identity, error)) (*bmodels.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return read(ctx)
}

// Location is the timezone punch dates are computed in.
func (s *Service) Location() *time.Location {
	return s.location
}

func (s *Service) register(ctx context.Context, a attempt) (*models.Outcome, error) {
	identity := a.identity
	employeeID := identity.ID
	if !identity.Active {
		return &models.Outcome{
			Kind:         models.OutcomeInactive,
			EmployeeID:   &employeeID,
			EmployeeName: identity.Name,
			Message:      msgInactive,
		}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	now := requestcontext.Now(ctx).In(s.location)
	day := models.DayOf(now, s.location)

	today, err := s.store.ListDay(ctx, employeeID, day)
	if err != nil {
		return nil, storeError(err, "punch store unavailable")
	}
	if latest := latestPunch(today); latest != nil && s.withinCooldown(now, latest.At) {
		return s.rejected(models.OutcomeDuplicate, identity, latest.Type, msgDuplicate), nil
	}

	sched, err := s.schedules.Resolve(ctx, employeeID, a.departmentID)
	if err != nil {
		return nil, err
	}
	next, ok := rules.Next(today, sched)
	if !ok {
		return &models.Outcome{
			Kind:         models.OutcomeDayComplete,
			EmployeeID:   &employeeID,
			EmployeeName: identity.Name,
			Message:      msgDayComplete,
		}, nil
	}

	validation := rules.Validate(next, now, sched, s.tolerance.ToleranceMinutes(ctx))
	punch := models.Punch{
		ID:         id.NewPunchID(),
		EmployeeID: employeeID,
		Date:       day,
		Type:       next,
		At:         now,
		Validation: validation,
		Source:     a.source,
		Device:     requestcontext.Device(ctx),
		Distance:   a.distance,
	}

	if err := s.store.Insert(ctx, punch); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.metrics.IncConflict()
			return s.reclassifyConflict(ctx, identity, day, next, now), nil
		}
		return nil, storeError(err, "punch store unavailable")
	}

	s.logger.InfoContext(ctx, "punch recorded",
		"employee_id", employeeID,
		"punch_type", next,
		"classification", validation.Classification,
		"delta_minutes", validation.DeltaMinutes,
		"source", a.source,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.metrics.IncClassification(string(next), string(validation.Classification))
	s.publisher.Publish(ctx, events.NewPunchRecorded(punch, identity.Name, requestcontext.RequestID(ctx)))

	today = append(today, punch)
	summary := rules.Summarize(day, today, now)
	out := &models.Outcome{
		Kind:         models.OutcomeAccepted,
		EmployeeID:   &employeeID,
		EmployeeName: identity.Name,
		PunchType:    next,
		PunchLabel:   next.Label(),
		At:           &punch.At,
		Validation:   &validation,
		Summary:      &summary,
	}
	if following, ok := rules.Next(today, sched); ok {
		out.NextExpected = &following
		out.NextExpectedLabel = following.Label()
	}
	return out, nil
}

// reclassifyConflict turns a lost insert race into the outcome the caller
// would have seen had it arrived second.
func (s *Service) reclassifyConflict(ctx context.Context, identity *bmodels.Identity, day time.Time, t models.Type, now time.Time) *models.Outcome {
	existing, err := s.store.Get(ctx, identity.ID, day, t)
	if err != nil {
		s.logger.WarnContext(ctx, "could not load conflicting punch",
			"employee_id", identity.ID,
			"punch_type", t,
			"error", err,
		)
		return s.rejected(models.OutcomeAlreadyRecorded, identity, t, msgAlreadyRecorded)
	}
	if s.withinCooldown(now, existing.At) {
		return s.rejected(models.OutcomeDuplicate, identity, t, msgDuplicate)
	}
	return s.rejected(models.OutcomeAlreadyRecorded, identity, t, msgAlreadyRecorded)
}

func (s *Service) rejected(kind models.OutcomeKind, identity *bmodels.Identity, t models.Type, msg string) *models.Outcome {
	employeeID := identity.ID
	return &models.Outcome{
		Kind:         kind,
		EmployeeID:   &employeeID,
		EmployeeName: identity.Name,
		PunchType:    t,
		PunchLabel:   t.Label(),
		Message:      msg,
	}
}

func (s *Service) withinCooldown(now, last time.Time) bool {
	elapsed := now.Sub(last)
	return elapsed >= 0 && elapsed < s.cooldown
}

func (s *Service) finish(ctx context.Context, span trace.Span, source models.Source, out *models.Outcome, start time.Time) *models.Outcome {
	span.SetAttributes(
		attribute.String("punch.source", string(source)),
		attribute.String("punch.outcome", string(out.Kind)),
	)
	s.metrics.ObserveOutcome(string(source), string(out.Kind), time.Since(start))
	if out.Kind != models.OutcomeAccepted {
		s.logger.InfoContext(ctx, "punch not recorded",
			"outcome", out.Kind,
			"source", source,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return out
}

func latestPunch(today []models.Punch) *models.Punch {
	var latest *models.Punch
	for i := range today {
		if latest == nil || today[i].At.After(latest.At) {
			latest = &today[i]
		}
	}
	return latest
}

func storeError(err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
}
