// Package projection folds the contracts' event logs into an in-memory view
// of agents, tasks and bonding curves, and caches that view for a fixed TTL.
//
// Folding is deterministic: the same streams in the same order always
// produce the same snapshot. Nothing here talks to the network except
// Engine.Build, which pages the logs through an EventSource.
package projection

import (
	"strconv"

	"github.com/holiman/uint256"
)

// AgentStatus mirrors the registry's numeric status codes.
type AgentStatus uint64

const (
	AgentActive       AgentStatus = 1
	AgentPaused       AgentStatus = 2
	AgentDeregistered AgentStatus = 3
)

func (s AgentStatus) String() string {
	switch s {
	case AgentActive:
		return "active"
	case AgentPaused:
		return "paused"
	case AgentDeregistered:
		return "deregistered"
	default:
		return "status-" + strconv.FormatUint(uint64(s), 10)
	}
}

// TaskStatus mirrors the task board's numeric status codes.
type TaskStatus uint64

const (
	TaskOpen      TaskStatus = 1
	TaskAssigned  TaskStatus = 2
	TaskSubmitted TaskStatus = 3
	TaskCompleted TaskStatus = 4
	TaskDisputed  TaskStatus = 5
	TaskCancelled TaskStatus = 6
	TaskExpired   TaskStatus = 7
)

func (s TaskStatus) String() string {
	switch s {
	case TaskOpen:
		return "open"
	case TaskAssigned:
		return "assigned"
	case TaskSubmitted:
		return "submitted"
	case TaskCompleted:
		return "completed"
	case TaskDisputed:
		return "disputed"
	case TaskCancelled:
		return "cancelled"
	case TaskExpired:
		return "expired"
	default:
		return "status-" + strconv.FormatUint(uint64(s), 10)
	}
}

// Reputation is the running aggregate of an agent's reputation events. Every
// field only grows.
type Reputation struct {
	TotalScore       uint64
	RatingCount      uint64
	TasksCompleted   uint64
	TasksDisputed    uint64
	EndorsementCount uint64
}

// AverageScore is TotalScore / RatingCount, or 0 with no ratings.
func (r Reputation) AverageScore() float64 {
	if r.RatingCount == 0 {
		return 0
	}
	return float64(r.TotalScore) / float64(r.RatingCount)
}

// Agent is a registered agent keyed by its principal.
type Agent struct {
	Principal    string
	Name         string
	Status       AgentStatus
	RegisteredAt uint64
	PricePerTask uint256.Int
	Reputation   *Reputation // nil until the first rating or endorsement
	HasVault     bool
}

func (a *Agent) clone() Agent {
	out := *a
	if a.Reputation != nil {
		rep := *a.Reputation
		out.Reputation = &rep
	}
	return out
}

// Task is a task-board entry keyed by its numeric id.
type Task struct {
	ID         uint64
	Poster     string
	Title      string
	Bounty     uint256.Int
	Status     TaskStatus
	CreatedAt  uint64
	Deadline   uint64
	AssignedTo *string
	BidCount   uint64
}

func (t *Task) clone() Task {
	out := *t
	if t.AssignedTo != nil {
		who := *t.AssignedTo
		out.AssignedTo = &who
	}
	return out
}

// Curve is a launchpad bonding curve keyed by its numeric id. Reserve and
// sold amounts are copied from trade events, never recomputed.
type Curve struct {
	ID         uint64
	Creator    string
	Name       string
	Symbol     string
	StxReserve uint256.Int
	TokensSold uint256.Int
	Graduated  bool
	CreatedAt  uint64
	TradeCount uint64
}
