package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Identifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	bcache "punchclock/internal/biometric/cache"
	"punchclock/internal/biometric/engine"
	bmodels "punchclock/internal/biometric/models"
	bservice "punchclock/internal/biometric/service"
	bstore "punchclock/internal/biometric/store"
	"punchclock/internal/punch/events"
	"punchclock/internal/punch/models"
	"punchclock/internal/punch/service/mocks"
	pstore "punchclock/internal/punch/store"
	schedule "punchclock/internal/schedule/models"
	"punchclock/internal/schedule/resolver"
	sstore "punchclock/internal/schedule/store"
	"punchclock/internal/settings"
	id "punchclock/pkg/domain"
	dErrors "punchclock/pkg/domain-errors"
	"punchclock/pkg/platform/sentinel"
	"punchclock/pkg/requestcontext"
)

// =============================================================================
// Punch Service Test Suite
// =============================================================================
// The suite wires real in-memory stores so each scenario exercises the whole
// path: identification, sequencing, validation and recording.

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.PunchRecorded
}

func (r *recordingPublisher) Publish(_ context.Context, ev events.PunchRecorded) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type PunchServiceSuite struct {
	suite.Suite
	logger    *slog.Logger
	employees *bstore.InMemoryStore
	faces     *bservice.Service
	punches   *pstore.InMemoryStore
	schedules *sstore.InMemoryStore
	settings  *settings.InMemoryStore
	publisher *recordingPublisher
	service   *Service

	day time.Time
	ana bmodels.Identity
}

func TestPunchServiceSuite(t *testing.T) {
	suite.Run(t, new(PunchServiceSuite))
}

func face(fill float64) bmodels.Template {
	t := make(bmodels.Template, bmodels.TemplateSize)
	for i := range t {
		t[i] = fill
	}
	return t
}

func (s *PunchServiceSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.employees = bstore.NewInMemory()
	s.punches = pstore.NewInMemory()
	s.schedules = sstore.NewInMemory()
	s.settings = settings.NewInMemoryStore()
	s.publisher = &recordingPublisher{}
	s.day = time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	s.ana = bmodels.Identity{ID: id.EmployeeID(uuid.New()), Name: "Ana", NationalID: "123.456.789-09", Active: true}
	s.employees.AddEmployee(s.ana, face(0.2))

	var err error
	s.faces, err = bservice.New(s.employees, bcache.NewInMemory(time.Hour), bservice.WithLogger(s.logger))
	s.Require().NoError(err)
	s.service = s.newService(s.faces, s.punches)
}

func (s *PunchServiceSuite) TearDownTest() {
	s.faces.Wait()
}

func (s *PunchServiceSuite) newService(identify Identifier, store Store) *Service {
	res, err := resolver.New(s.schedules, resolver.WithCacheTTL(0), resolver.WithLogger(s.logger))
	s.Require().NoError(err)
	tol, err := settings.New(s.settings, 30, settings.WithLogger(s.logger))
	s.Require().NoError(err)
	svc, err := New(store, identify, s.employees, res, tol,
		WithLogger(s.logger),
		WithPublisher(s.publisher),
		WithDuplicateCooldown(time.Minute),
	)
	s.Require().NoError(err)
	return svc
}

func (s *PunchServiceSuite) at(hhmm string) context.Context {
	return requestcontext.WithTime(context.Background(), schedule.MustClock(hhmm).On(s.day))
}

func (s *PunchServiceSuite) assignSchedule(start, end string, breakStart, breakEnd string) {
	sched := schedule.Schedule{
		ID:    id.ScheduleID(uuid.New()),
		Start: schedule.MustClock(start),
		End:   schedule.MustClock(end),
	}
	if breakStart != "" {
		bs, be := schedule.MustClock(breakStart), schedule.MustClock(breakEnd)
		sched.BreakStart, sched.BreakEnd = &bs, &be
	}
	s.schedules.PutSchedule(sched)
	s.schedules.SetEmployeeSchedule(s.ana.ID, sched.ID)
}

// =============================================================================
// Constructor
// =============================================================================

func (s *PunchServiceSuite) TestNew() {
	res, _ := resolver.New(s.schedules)
	tol, _ := settings.New(s.settings, 5)

	_, err := New(nil, s.faces, s.employees, res, tol)
	s.ErrorContains(err, "punch store is required")
	_, err = New(s.punches, nil, s.employees, res, tol)
	s.ErrorContains(err, "identifier is required")
	_, err = New(s.punches, s.faces, nil, res, tol)
	s.ErrorContains(err, "employee directory is required")
	_, err = New(s.punches, s.faces, s.employees, nil, tol)
	s.ErrorContains(err, "schedule resolver is required")
	_, err = New(s.punches, s.faces, s.employees, res, nil)
	s.ErrorContains(err, "tolerance source is required")
}

// =============================================================================
// Registration flow
// =============================================================================

func (s *PunchServiceSuite) TestLateEntryIsClassified() {
	s.assignSchedule("08:00", "17:00", "", "")

	out, err := s.service.IdentifyAndPunch(s.at("08:45"), face(0.2), nil)
	s.Require().NoError(err)
	s.Equal(models.OutcomeAccepted, out.Kind)
	s.Equal("Ana", out.EmployeeName)
	s.Equal(models.TypeEntry, out.PunchType)
	s.Require().NotNil(out.Validation)
	s.Equal(models.Late, out.Validation.Classification)
	s.Equal(45, out.Validation.DeltaMinutes)
	s.False(out.Validation.OnTime)

	s.Require().NotNil(out.NextExpected)
	s.Equal(models.TypeExit, *out.NextExpected)
	s.Equal("Exit", out.NextExpectedLabel)
	s.Require().NotNil(out.Summary)
	s.Equal("2026-03-09", out.Summary.Date)
}

func (s *PunchServiceSuite) TestNoScheduleIsVacuouslyValid() {
	out, err := s.service.IdentifyAndPunch(s.at("03:17"), face(0.2), nil)
	s.Require().NoError(err)
	s.Equal(models.OutcomeAccepted, out.Kind)
	s.True(out.Validation.OnTime)
	s.False(out.Validation.Checked)
	s.Empty(out.Validation.Classification)
}

func (s *PunchServiceSuite) TestRepeatScanIsDuplicate() {
	first, err := s.service.IdentifyAndPunch(s.at("08:00"), face(0.2), nil)
	s.Require().NoError(err)
	s.Equal(models.OutcomeAccepted, first.Kind)

	ctx := requestcontext.WithTime(context.Background(), schedule.MustClock("08:00").On(s.day).Add(10*time.Second))
	second, err := s.service.IdentifyAndPunch(ctx, face(0.2), nil)
	s.Require().NoError(err)
	s.Equal(models.OutcomeDuplicate, second.Kind)
	s.Equal("Ana", second.EmployeeName)
	s.NotEmpty(second.Message)
	s.Equal(1, s.punches.Inserts())
}

func (s *PunchServiceSuite) TestCompleteDayWritesNothing() {
	s.assignSchedule("08:00", "17:00", "12:00", "13:00")
	for _, hhmm := range []string{"08:00", "12:00", "13:00", "17:00"} {
		out, err := s.service.IdentifyAndPunch(s.at(hhmm), face(0.2), nil)
		s.Require().NoError(err)
		s.Require().Equal(models.OutcomeAccepted, out.Kind, hhmm)
	}
	s.Equal(4, s.punches.Inserts())

	out, err := s.service.IdentifyAndPunch(s.at("18:30"), face(0.2), nil)
	s.Require().NoError(err)
	s.Equal(models.OutcomeDayComplete, out.Kind)
	s.Equal("Ana", out.EmployeeName)
	s.NotEmpty(out.Message)
	s.Equal(4, s.punches.Inserts())

	s.Run("day lists each punch once", func() {
		punches, err := s.service.ListDay(context.Background(), s.ana.ID, s.day)
		s.Require().NoError(err)
		s.Len(punches, 4)
	})
}

// blockingCache is a template cache whose backend is down and whose
// repopulation hangs until released.
type blockingCache struct {
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (c *blockingCache) Backend() string { return "down" }
func (c *blockingCache) GetAll(context.Context) ([]bmodels.Entry, error) {
	return nil, sentinel.ErrUnavailable
}
func (c *blockingCache) Populate(ctx context.Context, _ []bmodels.Entry) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	select {
	case <-c.release:
	case <-ctx.Done():
	}
	return sentinel.ErrUnavailable
}
func (c *blockingCache) UpsertOne(context.Context, bmodels.Entry) error { return sentinel.ErrUnavailable }
func (c *blockingCache) RemoveOne(context.Context, id.EmployeeID) error { return sentinel.ErrUnavailable }
func (c *blockingCache) InvalidateAll(context.Context) error { return sentinel.ErrUnavailable }
func (c *blockingCache) Stats(context.Context) bmodels.CacheStats { return bmodels.CacheStats{Backend: "down"} }

func (s *PunchServiceSuite) TestCacheDownFallsBackToStore() {
	var target bmodels.Identity
	for i := range 49 {
		identity := bmodels.Identity{ID: id.EmployeeID(uuid.New()), Name: "emp", NationalID: uuid.NewString(), Active: true}
		s.employees.AddEmployee(identity, face(0.3+float64(i)*0.02))
		if i == 30 {
			target = identity
		}
	}
	down := &blockingCache{release: make(chan struct{})}
	faces, err := bservice.New(s.employees, down, bservice.WithLogger(s.logger), bservice.WithRefreshTimeout(5*time.Second))
	s.Require().NoError(err)
	svc := s.newService(faces, s.punches)

	done := make(chan *models.Outcome, 1)
	go func() {
		out, err := svc.IdentifyAndPunch(s.at("09:00"), face(0.3+30*0.02), nil)
		s.NoError(err)
		done <- out
	}()

	select {
	case out := <-done:
		s.Require().NotNil(out)
		s.Equal(models.OutcomeAccepted, out.Kind)
		s.Equal(target.ID, *out.EmployeeID)
	case <-time.After(2 * time.Second):
		s.FailNow("punch waited on cache repopulation")
	}

	close(down.release)
	faces.Wait()
	down.mu.Lock()
	s.Equal(1, down.calls)
	down.mu.Unlock()
}

// =============================================================================
// Identification outcomes
// =============================================================================

func (s *PunchServiceSuite) TestNoMatchReportsDistance() {
	out, err := s.service.IdentifyAndPunch(s.at("08:00"), face(0.9), nil)
	s.Require().NoError(err)
	s.Equal(models.OutcomeNoMatch, out.Kind)
	s.Require().NotNil(out.BestDistance)
	s.GreaterOrEqual(*out.BestDistance, engine.DefaultThreshold)
	s.Nil(out.EmployeeID)
	s.Zero(s.punches.Inserts())
}

func (s *PunchServiceSuite) TestInactiveEmployee() {
	s.employees.SetActive(s.ana.ID, false)

	out, err := s.service.IdentifyAndPunch(s.at("08:00"), face(0.2), nil)
	s.Require().NoError(err)
	s.Equal(models.OutcomeInactive, out.Kind)
	s.Equal("Ana", out.EmployeeName)
	s.Zero(s.punches.Inserts())
}

func (s *PunchServiceSuite) TestClearedTemplateStillCachedIsNoMatch() {
	n, err := s.faces.WarmCache(context.Background())
	s.Require().NoError(err)
	s.Require().Equal(1, n)

	// The directory loses the template while the cache keeps serving it.
	_, err = s.employees.ClearTemplate(context.Background(), s.ana.ID)
	s.Require().NoError(err)

	out, err := s.service.IdentifyAndPunch(s.at("08:00"), face(0.2), nil)
	s.Require().NoError(err)
	s.Equal(models.OutcomeNoMatch, out.Kind)
	s.Nil(out.EmployeeID)
	s.Zero(s.punches.Inserts())
}

// stallingDirectory never answers before the caller's deadline.
type stallingDirectory struct{}

func (stallingDirectory) GetEmployee(ctx context.Context, _ id.EmployeeID) (*bmodels.Identity, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stallingDirectory) FindByNationalID(ctx context.Context, _ string) (*bmodels.Identity, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *PunchServiceSuite) TestDirectoryReadsAreBounded() {
	res, err := resolver.New(s.schedules, resolver.WithLogger(s.logger))
	s.Require().NoError(err)
	tol, err := settings.New(s.settings, 30, settings.WithLogger(s.logger))
	s.Require().NoError(err)
	svc, err := New(s.punches, s.faces, stallingDirectory{}, res, tol,
		WithLogger(s.logger),
		WithStoreTimeout(20*time.Millisecond),
	)
	s.Require().NoError(err)

	s.Run("face path", func() {
		_, err := svc.IdentifyAndPunch(s.at("08:00"), face(0.2), nil)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	})

	s.Run("credential path", func() {
		_, err := svc.PunchByCredential(s.at("08:00"), s.ana.NationalID, nil)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	})

	s.Zero(s.punches.Inserts())
}

func (s *PunchServiceSuite) TestMalformedProbeRejectedBeforeIO() {
	ctrl := gomock.NewController(s.T())
	identify := mocks.NewMockIdentifier(ctrl)
	store := mocks.NewMockStore(ctrl)
	svc := s.newService(identify, store)

	_, err := svc.IdentifyAndPunch(context.Background(), make(bmodels.Template, 64), nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Contains(err.Error(), "got 64")
}

// =============================================================================
// Credential path
// =============================================================================

func (s *PunchServiceSuite) TestPunchByCredential() {
	s.Run("formatting is ignored", func() {
		out, err := s.service.PunchByCredential(s.at("08:00"), "123 456 789 09", nil)
		s.Require().NoError(err)
		s.Equal(models.OutcomeAccepted, out.Kind)
		s.Equal(s.ana.ID, *out.EmployeeID)
		s.Nil(out.BestDistance)
	})

	s.Run("unknown identifier is no match without distance", func() {
		out, err := s.service.PunchByCredential(s.at("08:00"), "000", nil)
		s.Require().NoError(err)
		s.Equal(models.OutcomeNoMatch, out.Kind)
		s.Nil(out.BestDistance)
	})

	s.Run("blank identifier is a validation error", func() {
		_, err := s.service.PunchByCredential(s.at("08:00"), " .-", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("records credential source and publishes", func() {
		punches, err := s.service.ListDay(context.Background(), s.ana.ID, s.day)
		s.Require().NoError(err)
		s.Require().Len(punches, 1)
		s.Equal(models.SourceCredential, punches[0].Source)
		s.Nil(punches[0].Distance)

		s.publisher.mu.Lock()
		defer s.publisher.mu.Unlock()
		s.Require().Len(s.publisher.events, 1)
		s.Equal(punches[0].ID, s.publisher.events[0].PunchID)
	})
}

// =============================================================================
// Conflicts and failures
// =============================================================================

func (s *PunchServiceSuite) TestConflictReclassification() {
	ctrl := gomock.NewController(s.T())
	store := mocks.NewMockStore(ctrl)
	svc := s.newService(s.faces, store)
	conflict := errors.Join(errors.New("punches_one_per_type"), sentinel.ErrConflict)
	now := schedule.MustClock("08:00").On(s.day)

	s.Run("concurrent twin within cooldown is duplicate", func() {
		store.EXPECT().ListDay(gomock.Any(), s.ana.ID, s.day).Return(nil, nil)
		store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(conflict)
		store.EXPECT().Get(gomock.Any(), s.ana.ID, s.day, models.TypeEntry).
			Return(&models.Punch{Type: models.TypeEntry, At: now.Add(-5 * time.Second)}, nil)

		out, err := svc.PunchByCredential(s.at("08:00"), s.ana.NationalID, nil)
		s.Require().NoError(err)
		s.Equal(models.OutcomeDuplicate, out.Kind)
	})

	s.Run("older existing punch is already recorded", func() {
		store.EXPECT().ListDay(gomock.Any(), s.ana.ID, s.day).Return(nil, nil)
		store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(conflict)
		store.EXPECT().Get(gomock.Any(), s.ana.ID, s.day, models.TypeEntry).
			Return(&models.Punch{Type: models.TypeEntry, At: now.Add(-2 * time.Hour)}, nil)

		out, err := svc.PunchByCredential(s.at("08:00"), s.ana.NationalID, nil)
		s.Require().NoError(err)
		s.Equal(models.OutcomeAlreadyRecorded, out.Kind)
		s.Equal(models.TypeEntry, out.PunchType)
	})

	s.Run("store down is retryable and writes nothing", func() {
		store.EXPECT().ListDay(gomock.Any(), s.ana.ID, s.day).Return(nil, errors.New("connection refused"))

		_, err := svc.PunchByCredential(s.at("08:00"), s.ana.NationalID, nil)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	s.Run("insert failure is retryable", func() {
		store.EXPECT().ListDay(gomock.Any(), s.ana.ID, s.day).Return(nil, nil)
		store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(context.DeadlineExceeded)

		_, err := svc.PunchByCredential(s.at("08:00"), s.ana.NationalID, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	})
}

func (s *PunchServiceSuite) TestConcurrentScansRecordOnce() {
	var wg sync.WaitGroup
	outcomes := make(chan models.OutcomeKind, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := s.service.PunchByCredential(s.at("08:00"), s.ana.NationalID, nil)
			if s.NoError(err) {
				outcomes <- out.Kind
			}
		}()
	}
	wg.Wait()
	close(outcomes)

	counts := map[models.OutcomeKind]int{}
	for kind := range outcomes {
		counts[kind]++
	}
	s.Equal(1, counts[models.OutcomeAccepted])
	s.Equal(7, counts[models.OutcomeDuplicate])
	s.Equal(1, s.punches.Inserts())
}

func (s *PunchServiceSuite) TestToleranceComesFromSettings() {
	s.assignSchedule("08:00", "17:00", "", "")
	s.Require().NoError(s.settings.Set(context.Background(), settings.KeyToleranceMinutes, "60"))

	out, err := s.service.IdentifyAndPunch(s.at("08:45"), face(0.2), nil)
	s.Require().NoError(err)
	s.Equal(models.OnTime, out.Validation.Classification)
	s.Equal(60, out.Validation.Tolerance)
}

func (s *PunchServiceSuite) TestDepartmentContextSchedule() {
	s.assignSchedule("08:00", "17:00", "", "")
	night := schedule.Schedule{ID: id.ScheduleID(uuid.New()), Start: schedule.MustClock("22:00"), End: schedule.MustClock("23:59")}
	s.schedules.PutSchedule(night)
	dept := id.DepartmentID(uuid.New())
	s.schedules.SetDepartmentSchedule(dept, night.ID)
	s.schedules.Assign(s.ana.ID, dept, nil, false)

	out, err := s.service.IdentifyAndPunch(s.at("22:10"), face(0.2), &dept)
	s.Require().NoError(err)
	s.Equal(models.OnTime, out.Validation.Classification)
	s.Equal(10, out.Validation.DeltaMinutes)
}
