package projection

import "sort"

// Leaderboard weights.
const (
	weightAverage     = 20
	weightCompleted   = 10
	weightEndorsement = 5
	weightDisputed    = 15
)

// RankedAgent is an agent with its leaderboard position.
type RankedAgent struct {
	Agent
	Rank         int
	Score        float64
	AverageScore float64
}

// CompositeScore weighs an agent's reputation: average rating ×20, completed
// tasks ×10, endorsements ×5, minus disputes ×15. Agents without reputation
// score zero.
func CompositeScore(a Agent) float64 {
	if a.Reputation == nil {
		return 0
	}
	r := a.Reputation
	return r.AverageScore()*weightAverage +
		float64(r.TasksCompleted)*weightCompleted +
		float64(r.EndorsementCount)*weightEndorsement -
		float64(r.TasksDisputed)*weightDisputed
}

// Rank orders agents by composite score, highest first. Ties keep their
// input order. Ranks start at 1.
func Rank(agents []Agent) []RankedAgent {
	out := make([]RankedAgent, len(agents))
	for i, a := range agents {
		out[i] = RankedAgent{Agent: a, Score: CompositeScore(a)}
		if a.Reputation != nil {
			out[i].AverageScore = a.Reputation.AverageScore()
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
