package detail

import "github.com/p-blackswan/agent-ledger-indexer/internal/projection"

// Amounts are decimal strings throughout; they routinely exceed 2^53.

type AgentDetail struct {
	Principal     string            `json:"principal"`
	Name          string            `json:"name"`
	Status        string            `json:"status"`
	StatusCode    uint64            `json:"statusCode"`
	PricePerTask  string            `json:"pricePerTask"`
	AcceptsStx    bool              `json:"acceptsStx"`
	AcceptsSip010 bool              `json:"acceptsSip010"`
	TotalTasks    uint64            `json:"totalTasks"`
	TotalEarned   string            `json:"totalEarned"`
	Capabilities  []string          `json:"capabilities"`
	Reputation    *ReputationDetail `json:"reputation"`
	AverageScore  *uint64           `json:"averageScore"`
	Vault         *VaultDetail      `json:"vault"`
	Curve         *CurveDetail      `json:"curve"`
}

type ReputationDetail struct {
	TotalScore       uint64 `json:"totalScore"`
	RatingCount      uint64 `json:"ratingCount"`
	TasksCompleted   uint64 `json:"tasksCompleted"`
	TasksDisputed    uint64 `json:"tasksDisputed"`
	EndorsementCount uint64 `json:"endorsementCount"`
}

type VaultDetail struct {
	PerTxCap      string `json:"perTxCap"`
	DailyCap      string `json:"dailyCap"`
	WhitelistOnly bool   `json:"whitelistOnly"`
}

type TaskDetail struct {
	ID         uint64  `json:"id"`
	Poster     string  `json:"poster"`
	Title      string  `json:"title"`
	Bounty     string  `json:"bounty"`
	Status     string  `json:"status"`
	StatusCode uint64  `json:"statusCode"`
	CreatedAt  uint64  `json:"createdAt"`
	Deadline   uint64  `json:"deadline"`
	AssignedTo *string `json:"assignedTo"`
	BidCount   uint64  `json:"bidCount"`
	Bids       []Bid   `json:"bids"`
}

type Bid struct {
	Bidder     string `json:"bidder"`
	Price      string `json:"price"`
	MessageURL string `json:"messageUrl"`
}

type CurveDetail struct {
	ID            uint64 `json:"id"`
	Creator       string `json:"creator"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	StxReserve    string `json:"stxReserve"`
	TokensSold    string `json:"tokensSold"`
	TotalSupply   string `json:"totalSupply"`
	FeeBps        uint64 `json:"feeBps"`
	AccruedFees   string `json:"accruedFees"`
	Graduated     bool   `json:"graduated"`
	GraduationStx string `json:"graduationStx"`
	// Progress is the graduation progress in whole percent.
	Progress uint64 `json:"progress"`
	// Price is the on-chain marginal price; nil when the read failed.
	Price      *string `json:"price"`
	LocalPrice string  `json:"localPrice"`
}

// Side of a curve trade.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

type Quote struct {
	CurveID       uint64 `json:"curveId"`
	Side          Side   `json:"side"`
	AmountIn      string `json:"amountIn"`
	Fee           string `json:"fee"`
	AmountOut     string `json:"amountOut"`
	NewStxReserve string `json:"newStxReserve"`
	NewTokensSold string `json:"newTokensSold"`
	// OnChain is the contract's own quote, flattened to decimal text. It is
	// nil when the read failed.
	OnChain map[string]string `json:"onChain"`
}

type Balance struct {
	CurveID uint64 `json:"curveId"`
	Holder  string `json:"holder"`
	Balance string `json:"balance"`
}

// Stats pairs the contracts' own get-stats counters with the indexed
// summary. A contract whose counters could not be read is nil and callers
// fall back to Indexed.
type Stats struct {
	Registry  map[string]string `json:"registry"`
	TaskBoard map[string]string `json:"taskBoard"`
	Launchpad map[string]string `json:"launchpad"`
	Indexed   *IndexedSummary   `json:"indexed"`
}

// IndexedSummary is a projection.Summary with its amounts rendered.
type IndexedSummary struct {
	projection.Summary
	OpenBounty      string `json:"openBounty"`
	TotalStxReserve string `json:"totalStxReserve"`
}

// NewIndexedSummary summarizes snap; nil yields nil.
func NewIndexedSummary(snap *projection.Snapshot) *IndexedSummary {
	if snap == nil {
		return nil
	}
	sum := snap.Summary()
	return &IndexedSummary{
		Summary:         sum,
		OpenBounty:      sum.OpenBounty.Dec(),
		TotalStxReserve: sum.TotalStxReserve.Dec(),
	}
}
