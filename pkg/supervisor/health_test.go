package supervisor

import (
	"errors"
	"testing"
	"time"
)

type stubRestarter struct {
	restarted []string
	fail      bool
}

func (s *stubRestarter) Restart(agent string) error {
	if s.fail {
		return errors.New("restart failed")
	}
	s.restarted = append(s.restarted, agent)
	return nil
}

type stubEscalator struct {
	escalated []string
}

func (s *stubEscalator) NotifyAgentEscalation(agent string, missedHeartbeats int) {
	s.escalated = append(s.escalated, agent)
}

func TestCheckAllHealthyAgentStaysHealthy(t *testing.T) {
	c := NewChecker([]string{"emailer"}, nil, nil, nil)
	fixedNow := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixedNow }
	c.Heartbeat("emailer")

	results := c.CheckAll()
	if results["emailer"].Status != "healthy" {
		t.Fatalf("expected healthy status, got %q", results["emailer"].Status)
	}
}

func TestCheckAllFirstMissTriesRestart(t *testing.T) {
	restarter := &stubRestarter{}
	c := NewChecker([]string{"emailer"}, restarter, nil, nil)
	fixedNow := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixedNow }
	c.Heartbeat("emailer")

	c.now = func() time.Time { return fixedNow.Add(90 * time.Minute) }
	results := c.CheckAll()
	if results["emailer"].Status != "restarting" {
		t.Fatalf("expected restarting status on first miss, got %q", results["emailer"].Status)
	}
	if len(restarter.restarted) != 1 {
		t.Fatalf("expected one restart attempt, got %d", len(restarter.restarted))
	}
}

func TestCheckAllSecondMissEscalates(t *testing.T) {
	escalator := &stubEscalator{}
	c := NewChecker([]string{"emailer"}, &stubRestarter{}, escalator, nil)
	fixedNow := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := fixedNow
	c.now = func() time.Time { return now }
	c.Heartbeat("emailer")

	now = fixedNow.Add(90 * time.Minute)
	c.CheckAll()

	now = fixedNow.Add(180 * time.Minute)
	results := c.CheckAll()

	if results["emailer"].Status != "escalated" {
		t.Fatalf("expected escalated status on second miss, got %q", results["emailer"].Status)
	}
	if len(escalator.escalated) != 1 || escalator.escalated[0] != "emailer" {
		t.Fatalf("expected escalation notified for emailer, got %+v", escalator.escalated)
	}
}

func TestCheckAllNeverHeartbeatIsStaleImmediately(t *testing.T) {
	c := NewChecker([]string{"payment-watcher"}, nil, nil, nil)
	fixedNow := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixedNow }

	results := c.CheckAll()
	if results["payment-watcher"].Status != "restarting" {
		t.Fatalf("expected an agent with no heartbeat yet to count as a first miss (restarting), got %q", results["payment-watcher"].Status)
	}
}
