package projection

import (
	"time"

	"github.com/holiman/uint256"
)

// Snapshot is one folded view of all three collections. It is never mutated
// after Fold returns; accessors hand out copies.
type Snapshot struct {
	agents     map[string]*Agent
	agentOrder []string
	tasks      map[uint64]*Task
	taskOrder  []uint64
	curves     map[uint64]*Curve
	curveOrder []uint64

	Stats         FoldStats
	BuiltAt       time.Time
	BuildDuration time.Duration
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		agents: make(map[string]*Agent),
		tasks:  make(map[uint64]*Task),
		curves: make(map[uint64]*Curve),
	}
}

func (s *Snapshot) addAgent(a *Agent) {
	s.agents[a.Principal] = a
	s.agentOrder = append(s.agentOrder, a.Principal)
}

func (s *Snapshot) addTask(t *Task) {
	s.tasks[t.ID] = t
	s.taskOrder = append(s.taskOrder, t.ID)
}

func (s *Snapshot) addCurve(c *Curve) {
	s.curves[c.ID] = c
	s.curveOrder = append(s.curveOrder, c.ID)
}

// Agents returns every agent in first-registration order.
func (s *Snapshot) Agents() []Agent {
	out := make([]Agent, 0, len(s.agentOrder))
	for _, p := range s.agentOrder {
		out = append(out, s.agents[p].clone())
	}
	return out
}

// Tasks returns every task in posting order.
func (s *Snapshot) Tasks() []Task {
	out := make([]Task, 0, len(s.taskOrder))
	for _, id := range s.taskOrder {
		out = append(out, s.tasks[id].clone())
	}
	return out
}

// Curves returns every curve in launch order.
func (s *Snapshot) Curves() []Curve {
	out := make([]Curve, 0, len(s.curveOrder))
	for _, id := range s.curveOrder {
		out = append(out, *s.curves[id])
	}
	return out
}

func (s *Snapshot) Agent(principal string) (Agent, bool) {
	a, ok := s.agents[principal]
	if !ok {
		return Agent{}, false
	}
	return a.clone(), true
}

func (s *Snapshot) Task(id uint64) (Task, bool) {
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return t.clone(), true
}

func (s *Snapshot) Curve(id uint64) (Curve, bool) {
	c, ok := s.curves[id]
	if !ok {
		return Curve{}, false
	}
	return *c, true
}

// CurveByCreator returns the curve launched by principal, if any.
func (s *Snapshot) CurveByCreator(principal string) (Curve, bool) {
	for _, id := range s.curveOrder {
		if c := s.curves[id]; c.Creator == principal {
			return *c, true
		}
	}
	return Curve{}, false
}

// Summary aggregates a snapshot for the stats endpoint.
type Summary struct {
	Agents          int            `json:"agents"`
	AgentsByStatus  map[string]int `json:"agentsByStatus"`
	AgentsWithVault int            `json:"agentsWithVault"`
	Tasks           int            `json:"tasks"`
	TasksByStatus   map[string]int `json:"tasksByStatus"`
	TotalBids       uint64         `json:"totalBids"`
	OpenBounty      uint256.Int    `json:"-"`
	Curves          int            `json:"curves"`
	GraduatedCurves int            `json:"graduatedCurves"`
	TotalTrades     uint64         `json:"totalTrades"`
	TotalStxReserve uint256.Int    `json:"-"`
	DroppedOrphans  int            `json:"droppedOrphanEvents"`
	BuiltAt         time.Time      `json:"builtAt"`
}

// Summary counts entities by status and totals open bounties, trades and
// curve reserves.
func (s *Snapshot) Summary() Summary {
	sum := Summary{
		Agents:         len(s.agentOrder),
		AgentsByStatus: make(map[string]int),
		Tasks:          len(s.taskOrder),
		TasksByStatus:  make(map[string]int),
		Curves:         len(s.curveOrder),
		DroppedOrphans: s.Stats.DroppedOrphanEvents(),
		BuiltAt:        s.BuiltAt,
	}
	for _, a := range s.agents {
		sum.AgentsByStatus[a.Status.String()]++
		if a.HasVault {
			sum.AgentsWithVault++
		}
	}
	for _, t := range s.tasks {
		sum.TasksByStatus[t.Status.String()]++
		sum.TotalBids += t.BidCount
		if t.Status == TaskOpen {
			sum.OpenBounty.Add(&sum.OpenBounty, &t.Bounty)
		}
	}
	for _, c := range s.curves {
		if c.Graduated {
			sum.GraduatedCurves++
		}
		sum.TotalTrades += c.TradeCount
		sum.TotalStxReserve.Add(&sum.TotalStxReserve, &c.StxReserve)
	}
	return sum
}
