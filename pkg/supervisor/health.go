// Package supervisor implements C13: tracking each agent's heartbeat,
// escalating a run of missed heartbeats to a human, and reconciling
// ledger/state/queue consistency across the fleet.
package supervisor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/novotechno/collections/internal/telemetry"
)

const (
	heartbeatTimeout = 60 * time.Minute
	missedThreshold  = 2
	maxRecentErrors  = 10
)

// HealthError is one recorded failure against an agent.
type HealthError struct {
	Timestamp time.Time
	Reason    string
}

// AgentHealth is the mutable health record for one agent.
type AgentHealth struct {
	Name          string
	LastHeartbeat time.Time
	Status        string // unknown, healthy, unhealthy, restarting, escalated
	Restarts      int
	Errors        []HealthError
	missedCount   int
}

func newAgentHealth(name string) *AgentHealth {
	return &AgentHealth{Name: name, Status: "unknown"}
}

// Heartbeat records a successful check-in, clearing any accumulated
// missed-heartbeat count.
func (a *AgentHealth) Heartbeat(now time.Time) {
	a.LastHeartbeat = now
	a.Status = "healthy"
	a.missedCount = 0
}

func (a *AgentHealth) markUnhealthy(now time.Time, reason string) {
	a.Errors = append(a.Errors, HealthError{Timestamp: now, Reason: reason})
	if len(a.Errors) > maxRecentErrors {
		a.Errors = a.Errors[len(a.Errors)-maxRecentErrors:]
	}
}

func (a *AgentHealth) isStale(now time.Time) bool {
	if a.LastHeartbeat.IsZero() {
		return true
	}
	return now.Sub(a.LastHeartbeat) > heartbeatTimeout
}

// CheckResult is the outcome of checking one agent.
type CheckResult struct {
	Name          string
	Status        string
	LastHeartbeat time.Time
	Errors        []HealthError
	Restarts      int
}

// Restarter attempts to restart a stalled agent process. A concrete
// implementation knows how the deployment supervises its agent processes
// (systemd, a process manager, a container orchestrator).
type Restarter interface {
	Restart(agent string) error
}

// Escalator surfaces an unrecoverable agent failure to a human.
type Escalator interface {
	NotifyAgentEscalation(agent string, missedHeartbeats int)
}

// Checker tracks health across a fixed set of agents.
type Checker struct {
	mu        sync.Mutex
	agents    map[string]*AgentHealth
	restarter Restarter
	escalator Escalator
	log       *slog.Logger
	now       func() time.Time
}

// NewChecker builds a Checker for the named agents.
func NewChecker(agentNames []string, restarter Restarter, escalator Escalator, log *slog.Logger) *Checker {
	if log == nil {
		log = slog.Default()
	}
	agents := make(map[string]*AgentHealth, len(agentNames))
	for _, name := range agentNames {
		agents[name] = newAgentHealth(name)
	}
	return &Checker{agents: agents, restarter: restarter, escalator: escalator, log: log, now: time.Now}
}

// Heartbeat records a check-in from the named agent.
func (c *Checker) Heartbeat(agent string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	health, ok := c.agents[agent]
	if !ok {
		health = newAgentHealth(agent)
		c.agents[agent] = health
	}
	health.Heartbeat(c.now())
}

// CheckAll evaluates every tracked agent: each missed heartbeat is recorded
// as an error; the first triggers an automatic restart attempt (status
// restarting), and the second or later escalates to a human (status
// escalated).
func (c *Checker) CheckAll() map[string]CheckResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	results := make(map[string]CheckResult, len(c.agents))
	now := c.now()
	for name, health := range c.agents {
		if health.isStale(now) {
			health.markUnhealthy(now, "no heartbeat received")
			health.missedCount++

			switch {
			case health.missedCount >= missedThreshold:
				c.escalate(name, health)
				health.Status = "escalated"
			case health.missedCount >= 1:
				c.tryRestart(name, health)
				health.Status = "restarting"
			default:
				health.Status = "unhealthy"
			}
		}

		results[name] = CheckResult{
			Name:          name,
			Status:        health.Status,
			LastHeartbeat: health.LastHeartbeat,
			Errors:        append([]HealthError(nil), health.Errors...),
			Restarts:      health.Restarts,
		}
	}
	return results
}

func (c *Checker) escalate(name string, health *AgentHealth) {
	c.log.Error("agent health escalation", "agent", name, "missed_heartbeats", health.missedCount)
	telemetry.AgentsEscalatedTotal.WithLabelValues(name).Inc()
	if c.escalator != nil {
		c.escalator.NotifyAgentEscalation(name, health.missedCount)
	}
}

func (c *Checker) tryRestart(name string, health *AgentHealth) {
	c.log.Info("attempting agent auto-restart", "agent", name)
	if c.restarter == nil {
		return
	}
	if err := c.restarter.Restart(name); err != nil {
		c.log.Error("agent auto-restart failed", "agent", name, "error", err)
		return
	}
	health.Restarts++
}
