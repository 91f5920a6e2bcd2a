package engine

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"punchclock/internal/biometric/models"
	id "punchclock/pkg/domain"
	dErrors "punchclock/pkg/domain-errors"
)

type EngineSuite struct {
	suite.Suite
	engine *Engine
	probe  models.Template
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.engine = New(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.probe = make(models.Template, models.TemplateSize)
}

// at returns a candidate whose distance from the zero probe is exactly d.
func at(name string, d float64) models.Entry {
	tpl := make(models.Template, models.TemplateSize)
	tpl[0] = d
	return models.Entry{EmployeeID: id.EmployeeID(uuid.New()), Name: name, Active: true, Template: tpl}
}

func (s *EngineSuite) TestRejectsMalformedProbe() {
	for _, n := range []int{0, 127, 129} {
		_, err := s.engine.FindBestMatch(make(models.Template, n), []models.Entry{at("a", 0.1)})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	}
}

func (s *EngineSuite) TestThreshold() {
	s.Run("distance equal to threshold is rejected", func() {
		res, err := s.engine.FindBestMatch(s.probe, []models.Entry{at("edge", DefaultThreshold)})
		s.Require().NoError(err)
		s.Nil(res.Match)
		s.InDelta(DefaultThreshold, res.BestDistance, 1e-12)
		s.Equal(DefaultThreshold, res.Threshold)
	})

	s.Run("best distance reported on rejection", func() {
		res, err := s.engine.FindBestMatch(s.probe, []models.Entry{at("far", 0.9), at("closer", 0.7)})
		s.Require().NoError(err)
		s.Nil(res.Match)
		s.InDelta(0.7, res.BestDistance, 1e-12)
		s.Equal(2, res.Compared)
	})

	s.Run("configurable threshold", func() {
		strict := New(WithThreshold(0.3))
		res, err := strict.FindBestMatch(s.probe, []models.Entry{at("a", 0.4)})
		s.Require().NoError(err)
		s.Nil(res.Match)
	})
}

func (s *EngineSuite) TestSelectsOnlyCandidateBelowThreshold() {
	candidates := []models.Entry{at("a", 1.2), at("b", 0.35), at("c", 0.8)}
	res, err := s.engine.FindBestMatch(s.probe, candidates)
	s.Require().NoError(err)
	s.Require().NotNil(res.Match)
	s.Equal("b", res.Match.Name)
	s.Equal(1, res.Index)
}

func (s *EngineSuite) TestNearestWinsAndFirstWinsTies() {
	candidates := []models.Entry{at("a", 0.5), at("b", 0.2), at("c", 0.2), at("d", 0.4)}
	res, err := s.engine.FindBestMatch(s.probe, candidates)
	s.Require().NoError(err)
	s.Require().NotNil(res.Match)
	s.Equal("b", res.Match.Name)
}

func (s *EngineSuite) TestSkipsMalformedCandidates() {
	bad := at("bad", 0.0)
	bad.Template = bad.Template[:64]
	candidates := []models.Entry{bad, at("good", 0.3)}

	res, err := s.engine.FindBestMatch(s.probe, candidates)
	s.Require().NoError(err)
	s.Equal(1, res.Compared, "comparisons equal valid candidates")
	s.Equal(1, res.Skipped)
	s.Require().NotNil(res.Match)
	s.Equal("good", res.Match.Name)
}

func (s *EngineSuite) TestEmptyCandidateSet() {
	res, err := s.engine.FindBestMatch(s.probe, nil)
	s.Require().NoError(err)
	s.Nil(res.Match)
	s.False(res.HasDistance())
}

func (s *EngineSuite) TestParallelAgreesWithSequential() {
	rng := rand.New(rand.NewPCG(7, 11))
	sharded := New(WithShardSize(16), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	for trial := range 25 {
		n := 1 + rng.IntN(200)
		candidates := make([]models.Entry, n)
		for i := range candidates {
			candidates[i] = at("c", rng.Float64()*1.5)
		}
		// force a tie across shard boundaries on some trials
		if trial%5 == 0 && n > 40 {
			candidates[3] = at("tie-first", 0.01)
			candidates[37] = at("tie-second", 0.01)
		}

		seq, err := s.engine.FindBestMatch(s.probe, candidates)
		s.Require().NoError(err)
		par, err := sharded.FindBestMatchParallel(context.Background(), s.probe, candidates)
		s.Require().NoError(err)

		s.Equal(seq.Index, par.Index, "trial %d", trial)
		s.Equal(seq.Compared, par.Compared)
		s.InDelta(seq.BestDistance, par.BestDistance, 1e-12)
		if seq.Match != nil {
			s.Same(seq.Match, par.Match)
		}
	}
}

func (s *EngineSuite) TestParallelHonoursCancellation() {
	sharded := New(WithShardSize(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sharded.FindBestMatchParallel(ctx, s.probe, []models.Entry{at("a", 0.1), at("b", 0.2)})
	s.ErrorIs(err, context.Canceled)
}

func BenchmarkFindBestMatch(b *testing.B) {
	rng := rand.New(rand.NewPCG(1, 2))
	candidates := make([]models.Entry, 10_000)
	for i := range candidates {
		tpl := make(models.Template, models.TemplateSize)
		for j := range tpl {
			tpl[j] = rng.Float64()
		}
		candidates[i] = models.Entry{Template: tpl}
	}
	probe := candidates[len(candidates)/2].Template
	e := New()

	b.Run("sequential", func(b *testing.B) {
		for b.Loop() {
			_, _ = e.FindBestMatch(probe, candidates)
		}
	})
	b.Run("parallel", func(b *testing.B) {
		for b.Loop() {
			_, _ = e.FindBestMatchParallel(context.Background(), probe, candidates)
		}
	})
}
