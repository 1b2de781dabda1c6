package projection

import (
	"github.com/p-blackswan/agent-ledger-indexer/internal/clarity"
)

// Stream names, in fold order.
const (
	StreamRegistry   = "registry"
	StreamTaskBoard  = "task-board"
	StreamVault      = "vault"
	StreamReputation = "reputation"
	StreamLaunchpad  = "launchpad"
)

// Streams holds the decoded payloads of each contract's log in log order.
type Streams struct {
	Registry   []clarity.Record
	TaskBoard  []clarity.Record
	Vault      []clarity.Record
	Reputation []clarity.Record
	Launchpad  []clarity.Record
}

// StreamStats counts what happened to each event of one stream. Every event
// lands in exactly one bucket.
type StreamStats struct {
	Events     int
	Applied    int
	Skipped    int // no event tag, or missing the key field
	Unknown    int // tag outside the contract's event set
	Duplicates int // re-registration, or a repeated post/launch of a known id
	Gated      int // reputation event before the aggregate exists
	Orphans    int // references an agent, task or curve not in the projection
}

// FoldStats is the per-stream breakdown of one fold.
type FoldStats struct {
	Registry   StreamStats
	TaskBoard  StreamStats
	Vault      StreamStats
	Reputation StreamStats
	Launchpad  StreamStats
}

// Each calls fn for every stream in fold order.
func (s FoldStats) Each(fn func(stream string, st StreamStats)) {
	fn(StreamRegistry, s.Registry)
	fn(StreamTaskBoard, s.TaskBoard)
	fn(StreamVault, s.Vault)
	fn(StreamReputation, s.Reputation)
	fn(StreamLaunchpad, s.Launchpad)
}

// DroppedOrphanEvents is the number of events, across all streams, that
// referenced an entity the projection does not know.
func (s FoldStats) DroppedOrphanEvents() int {
	n := 0
	s.Each(func(_ string, st StreamStats) { n += st.Orphans })
	return n
}

// Events is the total number of events folded.
func (s FoldStats) Events() int {
	n := 0
	s.Each(func(_ string, st StreamStats) { n += st.Events })
	return n
}

// Fold replays the streams from an empty state in the fixed order registry,
// task-board, vault, reputation, launchpad. Later streams only mutate
// entities created by earlier ones.
func Fold(streams Streams) *Snapshot {
	f := &folder{snap: newSnapshot()}
	for _, r := range streams.Registry {
		f.registry(r)
	}
	for _, r := range streams.TaskBoard {
		f.taskBoard(r)
	}
	for _, r := range streams.Vault {
		f.vault(r)
	}
	for _, r := range streams.Reputation {
		f.reputation(r)
	}
	for _, r := range streams.Launchpad {
		f.launchpad(r)
	}
	f.snap.Stats = f.stats
	return f.snap
}

type folder struct {
	snap  *Snapshot
	stats FoldStats
}

// eventTag returns the record's event field. Only string tags count.
func eventTag(r clarity.Record) (string, bool) {
	v, ok := r.Value("event")
	if !ok || (v.Type != clarity.TypeStringASCII && v.Type != clarity.TypeStringUTF8) || v.Text == "" {
		return "", false
	}
	return v.Text, true
}

func (f *folder) registry(r clarity.Record) {
	st := &f.stats.Registry
	st.Events++
	tag, ok := eventTag(r)
	if !ok {
		st.Skipped++
		return
	}

	switch RegistryEvent(tag) {
	case AgentRegistered:
		owner, ok := r.Principal("owner")
		if !ok {
			st.Skipped++
			return
		}
		if existing := f.snap.agents[owner]; existing != nil {
			existing.Status = AgentActive
			st.Duplicates++
			return
		}
		f.snap.addAgent(&Agent{
			Principal:    owner,
			Name:         r.Text("name", "Unknown"),
			Status:       AgentActive,
			RegisteredAt: r.Uint64("registered-at", 0),
			PricePerTask: r.Amount("price-per-task"),
		})
		st.Applied++

	case StatusChanged:
		owner, _ := r.Principal("owner")
		agent := f.snap.agents[owner]
		if agent == nil {
			st.Orphans++
			return
		}
		status := r.Uint64("status", 0)
		if status == 0 {
			status = r.Uint64("new-status", 0)
		}
		if status == 0 {
			status = uint64(AgentActive)
		}
		agent.Status = AgentStatus(status)
		st.Applied++

	default:
		st.Unknown++
	}
}

func (f *folder) taskBoard(r clarity.Record) {
	st := &f.stats.TaskBoard
	st.Events++
	tag, ok := eventTag(r)
	if !ok {
		st.Skipped++
		return
	}
	kind := TaskBoardEvent(tag)
	id := r.Uint64("task-id", 0)

	switch kind {
	case TaskPosted:
		if f.snap.tasks[id] != nil {
			st.Duplicates++
			return
		}
		f.snap.addTask(&Task{
			ID:        id,
			Poster:    r.Text("poster", ""),
			Title:     r.Text("title", ""),
			Bounty:    r.Amount("bounty"),
			Status:    TaskOpen,
			CreatedAt: r.Uint64("created-at", 0),
			Deadline:  r.Uint64("deadline", 0),
		})
		st.Applied++

	case BidPlaced:
		task := f.snap.tasks[id]
		if task == nil {
			st.Orphans++
			return
		}
		task.BidCount++
		st.Applied++

	case TaskAssign, WorkSubmitted, TaskApproved, TaskDispute, TaskCancel, TaskExpire:
		task := f.snap.tasks[id]
		if task == nil {
			st.Orphans++
			return
		}
		// last applied wins; lifecycle order is not enforced
		task.Status = taskStatusFor[kind]
		if kind == TaskAssign {
			if agent, ok := r.Principal("agent"); ok {
				task.AssignedTo = &agent
			}
		}
		st.Applied++

	default:
		st.Unknown++
	}
}

func (f *folder) vault(r clarity.Record) {
	st := &f.stats.Vault
	st.Events++
	tag, ok := eventTag(r)
	if !ok {
		st.Skipped++
		return
	}

	switch VaultEvent(tag) {
	case VaultCreated:
		owner, _ := r.Principal("owner")
		agent := f.snap.agents[owner]
		if agent == nil {
			st.Orphans++
			return
		}
		agent.HasVault = true
		st.Applied++

	default:
		st.Unknown++
	}
}

func (f *folder) reputation(r clarity.Record) {
	st := &f.stats.Reputation
	st.Events++
	tag, ok := eventTag(r)
	if !ok {
		st.Skipped++
		return
	}
	kind := ReputationEvent(tag)
	switch kind {
	case TaskCompletedRecorded, AgentRated, AgentEndorsed, DisputeRecorded:
	default:
		st.Unknown++
		return
	}

	principal, _ := r.Principal("agent")
	agent := f.snap.agents[principal]
	if agent == nil {
		st.Orphans++
		return
	}

	switch kind {
	case TaskCompletedRecorded, DisputeRecorded:
		// only counted once a rating or endorsement has created the aggregate
		if agent.Reputation == nil {
			st.Gated++
			return
		}
		if kind == TaskCompletedRecorded {
			agent.Reputation.TasksCompleted++
		} else {
			agent.Reputation.TasksDisputed++
		}
	case AgentRated:
		rep := ensureReputation(agent)
		rep.TotalScore += r.Uint64("score", 0)
		rep.RatingCount++
	case AgentEndorsed:
		ensureReputation(agent).EndorsementCount++
	}
	st.Applied++
}

func ensureReputation(a *Agent) *Reputation {
	if a.Reputation == nil {
		a.Reputation = &Reputation{}
	}
	return a.Reputation
}

func (f *folder) launchpad(r clarity.Record) {
	st := &f.stats.Launchpad
	st.Events++
	tag, ok := eventTag(r)
	if !ok {
		st.Skipped++
		return
	}
	kind := LaunchpadEvent(tag)
	id := r.Uint64("curve-id", 0)

	switch kind {
	case CurveLaunched:
		if f.snap.curves[id] != nil {
			st.Duplicates++
			return
		}
		f.snap.addCurve(&Curve{
			ID:        id,
			Creator:   r.Text("creator", ""),
			Name:      r.Text("name", ""),
			Symbol:    r.Text("symbol", ""),
			CreatedAt: r.Uint64("created-at", 0),
		})
		st.Applied++

	case TokenBought, TokenSold, CurveGraduated:
		curve := f.snap.curves[id]
		if curve == nil {
			st.Orphans++
			return
		}
		switch kind {
		case TokenBought:
			curve.TradeCount++
			curve.StxReserve = r.Amount("new-stx-reserve")
			curve.TokensSold = r.AmountOr("new-tokens-sold", curve.TokensSold)
		case TokenSold:
			curve.TradeCount++
			curve.StxReserve = r.Amount("new-stx-reserve")
		case CurveGraduated:
			curve.Graduated = true
		}
		st.Applied++

	default:
		st.Unknown++
	}
}
