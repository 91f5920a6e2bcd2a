package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type BreakerSuite struct {
	suite.Suite
	now     time.Time
	breaker *Breaker
}

func TestBreakerSuite(t *testing.T) {
	suite.Run(t, new(BreakerSuite))
}

func (s *BreakerSuite) SetupTest() {
	s.now = time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	s.breaker = New("template-cache",
		WithFailureThreshold(3),
		WithSuccessThreshold(2),
		WithCooldown(30*time.Second),
		WithClock(func() time.Time { return s.now }),
	)
}

func (s *BreakerSuite) fail(n int) (opened bool) {
	for range n {
		_, change := s.breaker.RecordFailure()
		opened = opened || change.Opened
	}
	return opened
}

func (s *BreakerSuite) TestStartsClosed() {
	s.Equal("template-cache", s.breaker.Name())
	s.Equal(StateClosed, s.breaker.State())
	s.Equal("closed", s.breaker.State().String())
	s.True(s.breaker.Allow())
}

func (s *BreakerSuite) TestOpening() {
	s.Run("stays closed below the threshold", func() {
		s.False(s.fail(2))
		s.False(s.breaker.IsOpen())
	})

	s.Run("opens on the threshold failure", func() {
		useFallback, change := s.breaker.RecordFailure()
		s.True(useFallback)
		s.True(change.Opened)
		s.Equal("open", s.breaker.State().String())
		s.False(s.breaker.Allow())
	})

	s.Run("further failures report no transition", func() {
		useFallback, change := s.breaker.RecordFailure()
		s.True(useFallback)
		s.False(change.Opened)
	})
}

func (s *BreakerSuite) TestSuccessClearsFailureStreak() {
	s.fail(2)
	usePrimary, _ := s.breaker.RecordSuccess()
	s.True(usePrimary)
	s.False(s.fail(2))
	s.False(s.breaker.IsOpen())
}

func (s *BreakerSuite) TestProbesAfterCooldown() {
	s.Require().True(s.fail(3))

	s.now = s.now.Add(29 * time.Second)
	s.False(s.breaker.Allow())

	s.now = s.now.Add(time.Second)
	s.True(s.breaker.Allow())
}

func (s *BreakerSuite) TestClosing() {
	s.Require().True(s.fail(3))

	s.Run("one success is not enough", func() {
		usePrimary, change := s.breaker.RecordSuccess()
		s.False(usePrimary)
		s.False(change.Closed)
	})

	s.Run("a failure restarts the success count", func() {
		s.breaker.RecordFailure()
		usePrimary, _ := s.breaker.RecordSuccess()
		s.False(usePrimary)
	})

	s.Run("closes after consecutive successes", func() {
		usePrimary, change := s.breaker.RecordSuccess()
		s.True(usePrimary)
		s.True(change.Closed)
		s.False(s.breaker.IsOpen())
	})
}

func (s *BreakerSuite) TestReset() {
	s.Require().True(s.fail(3))
	s.breaker.Reset()
	s.False(s.breaker.IsOpen())
	s.False(s.fail(2))
}
