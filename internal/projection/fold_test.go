package projection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/agent-ledger-indexer/internal/clarity"
)

const (
	alice = "ST356P5YEXBJC1ZANBWBNR0N0X7NT8AV7FZ017K55"
	bob   = "ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG"
)

type kv = map[string]clarity.Value

func rec(tag string, fields kv) clarity.Record {
	r := clarity.Record{"event": clarity.StringValue(tag)}
	for k, v := range fields {
		r[k] = v
	}
	return r
}

func u(n uint64) clarity.Value   { return clarity.UintValue(n) }
func p(s string) clarity.Value   { return clarity.PrincipalValue(s) }
func str(s string) clarity.Value { return clarity.StringValue(s) }

func registered(who string, price uint64) clarity.Record {
	return rec("agent-registered", kv{"owner": p(who), "name": str("agent-" + who[:4]), "price-per-task": u(price), "registered-at": u(100)})
}

func TestFold_RatingsAccumulate(t *testing.T) {
	snap := Fold(Streams{
		Registry: []clarity.Record{registered(alice, 1_000_000)},
		Reputation: []clarity.Record{
			rec("agent-rated", kv{"agent": p(alice), "score": u(4)}),
			rec("agent-rated", kv{"agent": p(alice), "score": u(5)}),
		},
	})

	agent, ok := snap.Agent(alice)
	require.True(t, ok)
	assert.Equal(t, "1000000", agent.PricePerTask.Dec())
	require.NotNil(t, agent.Reputation)
	assert.Equal(t, Reputation{TotalScore: 9, RatingCount: 2}, *agent.Reputation)
	assert.Equal(t, 4.5, agent.Reputation.AverageScore())
}

func TestFold_TaskBiddingAndAssignment(t *testing.T) {
	snap := Fold(Streams{
		TaskBoard: []clarity.Record{
			rec("task-posted", kv{"task-id": u(0), "poster": p(bob), "title": str("summarize"), "bounty": u(5_000_000), "created-at": u(10), "deadline": u(200)}),
			rec("bid-placed", kv{"task-id": u(0)}),
			rec("bid-placed", kv{"task-id": u(0)}),
			rec("bid-placed", kv{"task-id": u(0)}),
			rec("task-assigned", kv{"task-id": u(0), "agent": p(alice)}),
		},
	})

	task, ok := snap.Task(0)
	require.True(t, ok)
	assert.Equal(t, TaskAssigned, task.Status)
	assert.Equal(t, uint64(3), task.BidCount)
	require.NotNil(t, task.AssignedTo)
	assert.Equal(t, alice, *task.AssignedTo)
	assert.Equal(t, "5000000", task.Bounty.Dec())
	assert.Equal(t, bob, task.Poster)
	assert.Equal(t, uint64(200), task.Deadline)
}

func fullStreams() Streams {
	return Streams{
		Registry: []clarity.Record{
			registered(alice, 1_000_000),
			registered(bob, 250_000),
			rec("status-changed", kv{"owner": p(bob), "status": u(2)}),
		},
		TaskBoard: []clarity.Record{
			rec("task-posted", kv{"task-id": u(1), "poster": p(bob), "bounty": u(9)}),
			rec("bid-placed", kv{"task-id": u(1)}),
			rec("task-assigned", kv{"task-id": u(1), "agent": p(alice)}),
			rec("work-submitted", kv{"task-id": u(1)}),
			rec("task-approved", kv{"task-id": u(1)}),
		},
		Vault: []clarity.Record{rec("vault-created", kv{"owner": p(alice)})},
		Reputation: []clarity.Record{
			rec("agent-rated", kv{"agent": p(alice), "score": u(5)}),
			rec("task-completed-recorded", kv{"agent": p(alice)}),
			rec("agent-endorsed", kv{"agent": p(alice)}),
			rec("dispute-recorded", kv{"agent": p(alice)}),
		},
		Launchpad: []clarity.Record{
			rec("curve-launched", kv{"curve-id": u(0), "creator": p(alice), "name": str("Alpha"), "symbol": str("ALP")}),
			rec("token-bought", kv{"curve-id": u(0), "new-stx-reserve": u(1000), "new-tokens-sold": u(77)}),
			rec("curve-graduated", kv{"curve-id": u(0)}),
		},
	}
}

func TestFold_Idempotent(t *testing.T) {
	streams := fullStreams()
	first := Fold(streams)
	second := Fold(streams)

	assert.Equal(t, first.Agents(), second.Agents())
	assert.Equal(t, first.Tasks(), second.Tasks())
	assert.Equal(t, first.Curves(), second.Curves())
	assert.Equal(t, first.Stats, second.Stats)
}

func TestFold_ReputationIsMonotonic(t *testing.T) {
	streams := fullStreams()
	all := streams.Reputation

	var prev Reputation
	for n := 0; n <= len(all); n++ {
		streams.Reputation = all[:n]
		agent, ok := Fold(streams).Agent(alice)
		require.True(t, ok)
		var cur Reputation
		if agent.Reputation != nil {
			cur = *agent.Reputation
		}
		assert.GreaterOrEqual(t, cur.RatingCount, prev.RatingCount)
		assert.GreaterOrEqual(t, cur.TasksCompleted, prev.TasksCompleted)
		assert.GreaterOrEqual(t, cur.TasksDisputed, prev.TasksDisputed)
		assert.GreaterOrEqual(t, cur.EndorsementCount, prev.EndorsementCount)
		assert.GreaterOrEqual(t, cur.TotalScore, prev.TotalScore)
		prev = cur
	}
	assert.Equal(t, Reputation{TotalScore: 5, RatingCount: 1, TasksCompleted: 1, TasksDisputed: 1, EndorsementCount: 1}, prev)
}

func TestFold_GraduationIsSticky(t *testing.T) {
	streams := fullStreams()
	streams.Launchpad = append(streams.Launchpad,
		rec("token-sold", kv{"curve-id": u(0), "new-stx-reserve": u(10)}),
		rec("curve-launched", kv{"curve-id": u(0), "creator": p(bob)}),
	)

	seen := false
	for n := 0; n <= len(streams.Launchpad); n++ {
		s := streams
		s.Launchpad = streams.Launchpad[:n]
		curve, ok := Fold(s).Curve(0)
		if !ok {
			continue
		}
		if seen {
			assert.True(t, curve.Graduated, "prefix %d", n)
		}
		seen = seen || curve.Graduated
	}
	assert.True(t, seen)
}

func TestFold_ReversedStatusEventsFollowLastApplied(t *testing.T) {
	posted := rec("task-posted", kv{"task-id": u(3)})
	statuses := []clarity.Record{
		rec("task-assigned", kv{"task-id": u(3), "agent": p(alice)}),
		rec("work-submitted", kv{"task-id": u(3)}),
		rec("task-approved", kv{"task-id": u(3)}),
	}
	reversed := []clarity.Record{statuses[2], statuses[1], statuses[0]}

	forward, _ := Fold(Streams{TaskBoard: append([]clarity.Record{posted}, statuses...)}).Task(3)
	backward, _ := Fold(Streams{TaskBoard: append([]clarity.Record{posted}, reversed...)}).Task(3)

	assert.Equal(t, TaskCompleted, forward.Status)
	// the last event applied was task-assigned, so the status regresses
	assert.Equal(t, TaskAssigned, backward.Status)
	require.NotNil(t, backward.AssignedTo)
	assert.Equal(t, alice, *backward.AssignedTo)
}

func TestFold_OrphansAreCountedPerStream(t *testing.T) {
	snap := Fold(Streams{
		Registry: []clarity.Record{
			registered(alice, 1),
			rec("status-changed", kv{"owner": p(bob), "status": u(3)}),
		},
		TaskBoard: []clarity.Record{
			rec("bid-placed", kv{"task-id": u(42)}),
			rec("task-expired", kv{"task-id": u(42)}),
		},
		Vault: []clarity.Record{rec("vault-created", kv{"owner": p(bob)})},
		Reputation: []clarity.Record{
			rec("agent-rated", kv{"agent": p(bob), "score": u(5)}),
			rec("agent-endorsed", kv{"agent": p(bob)}),
		},
		Launchpad: []clarity.Record{rec("token-bought", kv{"curve-id": u(9), "new-stx-reserve": u(5)})},
	})

	assert.Equal(t, 1, snap.Stats.Registry.Orphans)
	assert.Equal(t, 2, snap.Stats.TaskBoard.Orphans)
	assert.Equal(t, 1, snap.Stats.Vault.Orphans)
	assert.Equal(t, 2, snap.Stats.Reputation.Orphans)
	assert.Equal(t, 1, snap.Stats.Launchpad.Orphans)
	assert.Equal(t, 7, snap.Stats.DroppedOrphanEvents())

	assert.Len(t, snap.Agents(), 1)
	assert.Empty(t, snap.Tasks())
	assert.Empty(t, snap.Curves())
	_, ok := snap.Agent(bob)
	assert.False(t, ok)
}

func TestFold_CompletionsBeforeFirstRatingAreGated(t *testing.T) {
	snap := Fold(Streams{
		Registry: []clarity.Record{registered(alice, 1)},
		Reputation: []clarity.Record{
			rec("task-completed-recorded", kv{"agent": p(alice)}),
			rec("dispute-recorded", kv{"agent": p(alice)}),
			rec("agent-endorsed", kv{"agent": p(alice)}),
			rec("task-completed-recorded", kv{"agent": p(alice)}),
		},
	})

	agent, _ := snap.Agent(alice)
	require.NotNil(t, agent.Reputation)
	assert.Equal(t, Reputation{TasksCompleted: 1, EndorsementCount: 1}, *agent.Reputation)
	assert.Equal(t, 2, snap.Stats.Reputation.Gated)
	assert.Equal(t, 2, snap.Stats.Reputation.Applied)
}

func TestFold_SkipsUntaggedAndIgnoresUnknown(t *testing.T) {
	snap := Fold(Streams{
		Registry: []clarity.Record{
			{},
			{"event": u(1)},
			{"owner": p(alice)},
			rec("agent-registered", kv{"name": str("no owner")}),
			rec("capability-added", kv{"owner": p(alice)}),
		},
		Vault: []clarity.Record{rec("vault-funded", kv{"owner": p(alice)})},
	})

	assert.Equal(t, 5, snap.Stats.Registry.Events)
	assert.Equal(t, 4, snap.Stats.Registry.Skipped)
	assert.Equal(t, 1, snap.Stats.Registry.Unknown)
	assert.Equal(t, 1, snap.Stats.Vault.Unknown)
	assert.Empty(t, snap.Agents())
}

func TestFold_ReRegistrationKeepsIdentity(t *testing.T) {
	snap := Fold(Streams{
		Registry: []clarity.Record{
			registered(alice, 1_000_000),
			rec("status-changed", kv{"owner": p(alice), "status": u(2)}),
			rec("agent-registered", kv{"owner": p(alice), "name": str("renamed"), "price-per-task": u(7)}),
		},
		Vault: []clarity.Record{rec("vault-created", kv{"owner": p(alice)})},
	})

	agents := snap.Agents()
	require.Len(t, agents, 1)
	assert.Equal(t, AgentActive, agents[0].Status)
	assert.Equal(t, "agent-ST35", agents[0].Name)
	assert.Equal(t, "1000000", agents[0].PricePerTask.Dec())
	assert.True(t, agents[0].HasVault)
	assert.Equal(t, 1, snap.Stats.Registry.Duplicates)
}

func TestFold_StatusChangedFallbacks(t *testing.T) {
	snap := Fold(Streams{
		Registry: []clarity.Record{
			registered(alice, 1),
			registered(bob, 1),
			rec("status-changed", kv{"owner": p(alice), "new-status": u(3)}),
			rec("status-changed", kv{"owner": p(bob), "status": u(2)}),
			rec("status-changed", kv{"owner": p(bob)}),
		},
	})

	a, _ := snap.Agent(alice)
	b, _ := snap.Agent(bob)
	assert.Equal(t, AgentDeregistered, a.Status)
	assert.Equal(t, AgentActive, b.Status)
}

func TestFold_CurveTrades(t *testing.T) {
	snap := Fold(Streams{
		Launchpad: []clarity.Record{
			rec("curve-launched", kv{"curve-id": u(4), "creator": p(bob), "name": str("Beta"), "symbol": str("BET"), "created-at": u(55)}),
			rec("token-bought", kv{"curve-id": u(4), "new-stx-reserve": u(100), "new-tokens-sold": u(50)}),
			rec("token-bought", kv{"curve-id": u(4), "new-stx-reserve": u(180)}),
			rec("token-sold", kv{"curve-id": u(4), "new-stx-reserve": u(60), "new-tokens-sold": u(1)}),
			rec("curve-launched", kv{"curve-id": u(4), "creator": p(alice), "name": str("Dup")}),
		},
	})

	curve, ok := snap.Curve(4)
	require.True(t, ok)
	assert.Equal(t, uint64(3), curve.TradeCount)
	assert.Equal(t, "60", curve.StxReserve.Dec())
	assert.Equal(t, "50", curve.TokensSold.Dec())
	assert.Equal(t, "Beta", curve.Name)
	assert.Equal(t, bob, curve.Creator)
	assert.Equal(t, uint64(55), curve.CreatedAt)
	assert.False(t, curve.Graduated)
	assert.Equal(t, 1, snap.Stats.Launchpad.Duplicates)

	byCreator, ok := snap.CurveByCreator(bob)
	require.True(t, ok)
	assert.Equal(t, uint64(4), byCreator.ID)
}

func TestSnapshot_AccessorsReturnCopiesInLogOrder(t *testing.T) {
	snap := Fold(fullStreams())

	agents := snap.Agents()
	require.Len(t, agents, 2)
	assert.Equal(t, alice, agents[0].Principal)
	assert.Equal(t, bob, agents[1].Principal)

	agents[0].Name = "mutated"
	agents[0].Reputation.RatingCount = 99
	again, _ := snap.Agent(alice)
	assert.NotEqual(t, "mutated", again.Name)
	assert.Equal(t, uint64(1), again.Reputation.RatingCount)

	tasks := snap.Tasks()
	*tasks[0].AssignedTo = "someone-else"
	task, _ := snap.Task(1)
	assert.Equal(t, alice, *task.AssignedTo)
}

func TestSnapshot_Summary(t *testing.T) {
	streams := fullStreams()
	streams.TaskBoard = append(streams.TaskBoard,
		rec("task-posted", kv{"task-id": u(2), "bounty": u(300)}),
		rec("task-posted", kv{"task-id": u(3), "bounty": u(400)}),
	)
	sum := Fold(streams).Summary()

	assert.Equal(t, 2, sum.Agents)
	assert.Equal(t, map[string]int{"active": 1, "paused": 1}, sum.AgentsByStatus)
	assert.Equal(t, 1, sum.AgentsWithVault)
	assert.Equal(t, 3, sum.Tasks)
	assert.Equal(t, map[string]int{"completed": 1, "open": 2}, sum.TasksByStatus)
	assert.Equal(t, "700", sum.OpenBounty.Dec())
	assert.Equal(t, uint64(1), sum.TotalBids)
	assert.Equal(t, 1, sum.Curves)
	assert.Equal(t, 1, sum.GraduatedCurves)
	assert.Equal(t, uint64(1), sum.TotalTrades)
	assert.Equal(t, "1000", sum.TotalStxReserve.Dec())
}
