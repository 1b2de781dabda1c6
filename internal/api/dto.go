package api

import (
	"github.com/p-blackswan/agent-ledger-indexer/internal/projection"
)

// Collection shapes. Amounts are decimal strings so they survive JSON
// number limits; statuses stay numeric as on-chain.

type ReputationDTO struct {
	TotalScore       uint64 `json:"totalScore"`
	RatingCount      uint64 `json:"ratingCount"`
	TasksCompleted   uint64 `json:"tasksCompleted"`
	TasksDisputed    uint64 `json:"tasksDisputed"`
	EndorsementCount uint64 `json:"endorsementCount"`
}

type AgentDTO struct {
	Principal    string         `json:"principal"`
	Name         string         `json:"name"`
	Status       uint64         `json:"status"`
	RegisteredAt uint64         `json:"registeredAt"`
	PricePerTask string         `json:"pricePerTask"`
	Reputation   *ReputationDTO `json:"reputation"`
	HasVault     bool           `json:"hasVault"`
}

type TaskDTO struct {
	ID         uint64  `json:"id"`
	Poster     string  `json:"poster"`
	Title      string  `json:"title"`
	Bounty     string  `json:"bounty"`
	Status     uint64  `json:"status"`
	CreatedAt  uint64  `json:"createdAt"`
	Deadline   uint64  `json:"deadline"`
	AssignedTo *string `json:"assignedTo"`
	BidCount   uint64  `json:"bidCount"`
}

type CurveDTO struct {
	ID         uint64 `json:"id"`
	Creator    string `json:"creator"`
	Name       string `json:"name"`
	Symbol     string `json:"symbol"`
	StxReserve string `json:"stxReserve"`
	TokensSold string `json:"tokensSold"`
	Graduated  bool   `json:"graduated"`
	CreatedAt  uint64 `json:"createdAt"`
	TradeCount uint64 `json:"tradeCount"`
}

type LeaderboardEntry struct {
	Rank         int      `json:"rank"`
	Score        float64  `json:"score"`
	AverageScore float64  `json:"averageScore"`
	Agent        AgentDTO `json:"agent"`
}

func agentDTO(a projection.Agent) AgentDTO {
	d := AgentDTO{
		Principal:    a.Principal,
		Name:         a.Name,
		Status:       uint64(a.Status),
		RegisteredAt: a.RegisteredAt,
		PricePerTask: a.PricePerTask.Dec(),
		HasVault:     a.HasVault,
	}
	if r := a.Reputation; r != nil {
		d.Reputation = &ReputationDTO{
			TotalScore:       r.TotalScore,
			RatingCount:      r.RatingCount,
			TasksCompleted:   r.TasksCompleted,
			TasksDisputed:    r.TasksDisputed,
			EndorsementCount: r.EndorsementCount,
		}
	}
	return d
}

func taskDTO(t projection.Task) TaskDTO {
	return TaskDTO{
		ID:         t.ID,
		Poster:     t.Poster,
		Title:      t.Title,
		Bounty:     t.Bounty.Dec(),
		Status:     uint64(t.Status),
		CreatedAt:  t.CreatedAt,
		Deadline:   t.Deadline,
		AssignedTo: t.AssignedTo,
		BidCount:   t.BidCount,
	}
}

func curveDTO(c projection.Curve) CurveDTO {
	return CurveDTO{
		ID:         c.ID,
		Creator:    c.Creator,
		Name:       c.Name,
		Symbol:     c.Symbol,
		StxReserve: c.StxReserve.Dec(),
		TokensSold: c.TokensSold.Dec(),
		Graduated:  c.Graduated,
		CreatedAt:  c.CreatedAt,
		TradeCount: c.TradeCount,
	}
}
