// Package detail serves per-entity views read straight from the contracts'
// read-only functions, as opposed to the event-folded collections.
package detail

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/p-blackswan/agent-ledger-indexer/internal/clarity"
	"github.com/p-blackswan/agent-ledger-indexer/internal/curve"
	perrors "github.com/p-blackswan/agent-ledger-indexer/internal/errors"
	"github.com/p-blackswan/agent-ledger-indexer/internal/lru"
	"github.com/p-blackswan/agent-ledger-indexer/internal/metrics"
	"github.com/p-blackswan/agent-ledger-indexer/internal/projection"
)

const (
	maxCapabilities = 8
	maxBids         = 20
	bidConcurrency  = 4
)

// Ledger is the set of read-only calls the detail views make.
// *ledger.Client satisfies it.
type Ledger interface {
	GetAgent(ctx context.Context, principal string) (*clarity.Value, error)
	GetCapability(ctx context.Context, principal string, index uint64) (*clarity.Value, error)
	GetRegistryStats(ctx context.Context) (*clarity.Value, error)
	GetReputation(ctx context.Context, principal string) (*clarity.Value, error)
	GetAverageScore(ctx context.Context, principal string) (*clarity.Value, error)
	GetVault(ctx context.Context, principal string) (*clarity.Value, error)
	GetTask(ctx context.Context, id uint64) (*clarity.Value, error)
	GetBidCount(ctx context.Context, taskID uint64) (*clarity.Value, error)
	GetBidAt(ctx context.Context, taskID, index uint64) (*clarity.Value, error)
	GetBid(ctx context.Context, taskID uint64, bidder string) (*clarity.Value, error)
	GetTaskStats(ctx context.Context) (*clarity.Value, error)
	GetCurve(ctx context.Context, id uint64) (*clarity.Value, error)
	GetCurveBalance(ctx context.Context, curveID uint64, holder string) (*clarity.Value, error)
	GetAgentCurve(ctx context.Context, agent string) (*clarity.Value, error)
	GetBuyQuote(ctx context.Context, curveID uint64, stxIn *uint256.Int) (*clarity.Value, error)
	GetSellQuote(ctx context.Context, curveID uint64, tokensIn *uint256.Int) (*clarity.Value, error)
	GetCurvePrice(ctx context.Context, curveID uint64) (*clarity.Value, error)
	GetLaunchpadStats(ctx context.Context) (*clarity.Value, error)
}

// Options configures a Service.
type Options struct {
	CacheSize int
	CacheTTL  time.Duration
	// Params are the curve defaults used when a get-curve record omits a
	// parameter.
	Params  curve.Params
	Metrics *metrics.Metrics
}

// Service assembles detail views. Results are kept in an expiring LRU;
// failures are never cached.
type Service struct {
	ledger Ledger
	params curve.Params
	cache  *lru.Cache[string, any]
	logger zerolog.Logger
}

// NewService creates a detail service over l.
func NewService(l Ledger, opts Options, logger zerolog.Logger) *Service {
	if opts.CacheSize < 1 {
		opts.CacheSize = 512
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}
	cache := lru.New[string, any](opts.CacheSize,
		lru.WithTTL[string, any](opts.CacheTTL),
		lru.WithOnEvict[string, any](func(string, any) { opts.Metrics.RecordDetailEviction() }),
	)
	return &Service{
		ledger: l,
		params: opts.Params,
		cache:  cache,
		logger: logger.With().Str("component", "detail").Logger(),
	}
}

// CacheStats reports hit and miss counts of the detail cache.
func (s *Service) CacheStats() lru.Stats {
	return s.cache.Metrics()
}

func cached[T any](s *Service, key string, load func() (T, error)) (T, error) {
	if v, ok := s.cache.Get(key); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}
	t, err := load()
	if err != nil {
		if perrors.Is(err, perrors.ErrUnavailable) {
			s.logger.Warn().Err(err).Str("key", key).Msg("detail read unavailable")
		}
		return t, err
	}
	s.cache.Put(key, t)
	return t, nil
}

// readErr classifies a failed primary read. Bad input and cancellation
// pass through; everything else means the ledger could not answer.
func readErr(err error) error {
	switch {
	case perrors.Is(err, perrors.ErrInvalidInput),
		perrors.Is(err, context.Canceled),
		perrors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %v", perrors.ErrUnavailable, err)
}

// primary unwraps the record a view cannot do without. An absent value is
// ErrNotFound.
func primary(v *clarity.Value, err error) (clarity.Record, error) {
	if err != nil {
		return nil, readErr(err)
	}
	inner := clarity.Unwrap(v)
	if inner == nil {
		return nil, perrors.ErrNotFound
	}
	return clarity.FlattenTuple(inner), nil
}

// optional unwraps a secondary read, absorbing any failure into nil.
func optional(v *clarity.Value, err error) *clarity.Value {
	if err != nil {
		return nil
	}
	return clarity.Unwrap(v)
}

// tuple is optional for tuple-shaped results.
func tuple(v *clarity.Value, err error) clarity.Record {
	inner := optional(v, err)
	if inner == nil || inner.Type != clarity.TypeTuple {
		return nil
	}
	return clarity.FlattenTuple(inner)
}

// flatten renders a result as field name to decimal text. Non-tuple values
// appear under "value".
func flatten(v *clarity.Value) map[string]string {
	if v == nil {
		return nil
	}
	rec := clarity.Record{"value": *v}
	if v.Type == clarity.TypeTuple {
		rec = clarity.FlattenTuple(v)
	}
	out := make(map[string]string, len(rec))
	for k := range rec {
		out[k] = rec.Text(k, "")
	}
	return out
}

func amount(rec clarity.Record, name string) string {
	a := rec.Amount(name)
	return a.Dec()
}

// Agent returns the on-chain view of an agent with its reputation, vault,
// capabilities and bonding curve.
func (s *Service) Agent(ctx context.Context, principal string) (*AgentDetail, error) {
	return cached(s, "agent:"+principal, func() (*AgentDetail, error) {
		return s.loadAgent(ctx, principal)
	})
}

func (s *Service) loadAgent(ctx context.Context, principal string) (*AgentDetail, error) {
	var (
		agent, rep, vault, link clarity.Record
		avg                     *clarity.Value
		caps                    = make([]string, maxCapabilities)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rec, err := primary(s.ledger.GetAgent(gctx, principal))
		if err != nil {
			return fmt.Errorf("agent %s: %w", principal, err)
		}
		agent = rec
		return nil
	})
	g.Go(func() error {
		rep = tuple(s.ledger.GetReputation(gctx, principal))
		return nil
	})
	g.Go(func() error {
		avg = optional(s.ledger.GetAverageScore(gctx, principal))
		return nil
	})
	g.Go(func() error {
		vault = tuple(s.ledger.GetVault(gctx, principal))
		return nil
	})
	g.Go(func() error {
		link = tuple(s.ledger.GetAgentCurve(gctx, principal))
		return nil
	})
	for i := range maxCapabilities {
		g.Go(func() error {
			caps[i] = tuple(s.ledger.GetCapability(gctx, principal, uint64(i))).Text("capability", "")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	status := agent.Uint64("status", uint64(projection.AgentActive))
	d := &AgentDetail{
		Principal:     principal,
		Name:          agent.Text("name", "Unknown"),
		Status:        projection.AgentStatus(status).String(),
		StatusCode:    status,
		PricePerTask:  amount(agent, "price-per-task"),
		AcceptsStx:    agent.Bool("accepts-stx"),
		AcceptsSip010: agent.Bool("accepts-sip010"),
		TotalTasks:    agent.Uint64("total-tasks", 0),
		TotalEarned:   amount(agent, "total-earned"),
		Capabilities:  make([]string, 0, maxCapabilities),
	}
	for _, c := range caps {
		if c != "" {
			d.Capabilities = append(d.Capabilities, c)
		}
	}
	if rep != nil {
		d.Reputation = &ReputationDetail{
			TotalScore:       rep.Uint64("total-score", 0),
			RatingCount:      rep.Uint64("rating-count", 0),
			TasksCompleted:   rep.Uint64("tasks-completed", 0),
			TasksDisputed:    rep.Uint64("tasks-disputed", 0),
			EndorsementCount: rep.Uint64("endorsement-count", 0),
		}
	}
	if avg != nil && avg.Type == clarity.TypeUint && avg.Uint.IsUint64() {
		score := avg.Uint.Uint64()
		d.AverageScore = &score
	}
	if vault != nil {
		d.Vault = &VaultDetail{
			PerTxCap:      amount(vault, "per-tx-cap"),
			DailyCap:      amount(vault, "daily-cap"),
			WhitelistOnly: vault.Bool("whitelist-only"),
		}
	}
	if link.Has("curve-id") {
		// the curve is secondary here; an agent page renders without it
		if c, err := s.Curve(ctx, link.Uint64("curve-id", 0)); err == nil {
			d.Curve = c
		}
	}
	return d, nil
}

// Task returns a task with up to the first twenty bids.
func (s *Service) Task(ctx context.Context, id uint64) (*TaskDetail, error) {
	return cached(s, "task:"+strconv.FormatUint(id, 10), func() (*TaskDetail, error) {
		return s.loadTask(ctx, id)
	})
}

func (s *Service) loadTask(ctx context.Context, id uint64) (*TaskDetail, error) {
	rec, err := primary(s.ledger.GetTask(ctx, id))
	if err != nil {
		return nil, fmt.Errorf("task %d: %w", id, err)
	}

	status := rec.Uint64("status", uint64(projection.TaskOpen))
	d := &TaskDetail{
		ID:         id,
		Poster:     rec.Text("poster", ""),
		Title:      rec.Text("title", fmt.Sprintf("Task #%d", id)),
		Bounty:     amount(rec, "bounty"),
		Status:     projection.TaskStatus(status).String(),
		StatusCode: status,
		CreatedAt:  rec.Uint64("created-at", 0),
		Deadline:   rec.Uint64("deadline", 0),
		BidCount:   tuple(s.ledger.GetBidCount(ctx, id)).Uint64("count", 0),
	}
	if assigned, ok := rec.Principal("assigned-to"); ok {
		d.AssignedTo = &assigned
	}

	n := min(d.BidCount, maxBids)
	bids := make([]*Bid, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bidConcurrency)
	for i := range n {
		g.Go(func() error {
			bidder, ok := tuple(s.ledger.GetBidAt(gctx, id, i)).Principal("bidder")
			if !ok {
				return nil
			}
			bid := tuple(s.ledger.GetBid(gctx, id, bidder))
			if bid == nil {
				return nil
			}
			bids[i] = &Bid{
				Bidder:     bidder,
				Price:      amount(bid, "price"),
				MessageURL: bid.Text("message-url", ""),
			}
			return nil
		})
	}
	_ = g.Wait()

	d.Bids = make([]Bid, 0, n)
	for _, b := range bids {
		if b != nil {
			d.Bids = append(d.Bids, *b)
		}
	}
	return d, nil
}

// Curve returns a bonding curve with its on-chain and locally computed
// marginal price.
func (s *Service) Curve(ctx context.Context, id uint64) (*CurveDetail, error) {
	return cached(s, "curve:"+strconv.FormatUint(id, 10), func() (*CurveDetail, error) {
		return s.loadCurve(ctx, id)
	})
}

func (s *Service) loadCurve(ctx context.Context, id uint64) (*CurveDetail, error) {
	var (
		rec   clarity.Record
		price *clarity.Value
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := primary(s.ledger.GetCurve(gctx, id))
		if err != nil {
			return fmt.Errorf("curve %d: %w", id, err)
		}
		rec = r
		return nil
	})
	g.Go(func() error {
		price = optional(s.ledger.GetCurvePrice(gctx, id))
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p := curve.ParamsFromRecord(rec, s.params)
	reserve := rec.Amount("stx-reserve")
	sold := rec.Amount("tokens-sold")
	d := &CurveDetail{
		ID:            id,
		Creator:       rec.Text("creator", ""),
		Name:          rec.Text("name", fmt.Sprintf("Token #%d", id)),
		Symbol:        rec.Text("symbol", "???"),
		StxReserve:    reserve.Dec(),
		TokensSold:    sold.Dec(),
		TotalSupply:   p.TotalSupply.Dec(),
		FeeBps:        p.FeeBps,
		AccruedFees:   amount(rec, "accrued-fees"),
		Graduated:     rec.Bool("graduated"),
		GraduationStx: p.GraduationStx.Dec(),
		Progress:      curve.GraduationProgress(reserve, p.GraduationStx),
	}
	if local, err := curve.Price(p, reserve, sold); err == nil {
		d.LocalPrice = local.Dec()
	}
	if price != nil && price.Type == clarity.TypeUint {
		onChain := price.Uint.Dec()
		d.Price = &onChain
	}
	return d, nil
}

// ParseSide validates a trade side.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case Buy, Sell:
		return Side(s), nil
	}
	return "", fmt.Errorf("%w: side must be buy or sell, got %q", perrors.ErrInvalidInput, s)
}

// Quote prices a trade against the curve's current state with the local
// curve math, alongside the contract's own quote when it can be read.
// Quotes are not cached.
func (s *Service) Quote(ctx context.Context, id uint64, side Side, amt uint256.Int) (*Quote, error) {
	if _, err := ParseSide(string(side)); err != nil {
		return nil, err
	}
	if amt.IsZero() {
		return nil, fmt.Errorf("%w: %w", perrors.ErrInvalidInput, curve.ErrZeroAmount)
	}

	var (
		rec     clarity.Record
		onChain *clarity.Value
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := primary(s.ledger.GetCurve(gctx, id))
		if err != nil {
			return fmt.Errorf("curve %d: %w", id, err)
		}
		rec = r
		return nil
	})
	g.Go(func() error {
		if side == Buy {
			onChain = optional(s.ledger.GetBuyQuote(gctx, id, &amt))
		} else {
			onChain = optional(s.ledger.GetSellQuote(gctx, id, &amt))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p := curve.ParamsFromRecord(rec, s.params)
	reserve := rec.Amount("stx-reserve")
	sold := rec.Amount("tokens-sold")
	q := &Quote{CurveID: id, Side: side, AmountIn: amt.Dec(), OnChain: flatten(onChain)}

	if side == Buy {
		bq, err := curve.Buy(p, reserve, sold, amt)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", perrors.ErrInvalidInput, err)
		}
		q.Fee, q.AmountOut = bq.Fee.Dec(), bq.TokensOut.Dec()
		q.NewStxReserve, q.NewTokensSold = bq.NewStxReserve.Dec(), bq.NewTokensSold.Dec()
		return q, nil
	}
	sq, err := curve.Sell(p, reserve, sold, amt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", perrors.ErrInvalidInput, err)
	}
	q.Fee, q.AmountOut = sq.Fee.Dec(), sq.StxOut.Dec()
	q.NewStxReserve, q.NewTokensSold = sq.NewStxReserve.Dec(), sq.NewTokensSold.Dec()
	return q, nil
}

// Balance reads a holder's token balance on a curve. A holder with no
// balance entry reads as zero.
func (s *Service) Balance(ctx context.Context, id uint64, holder string) (*Balance, error) {
	v, err := s.ledger.GetCurveBalance(ctx, id, holder)
	if err != nil {
		return nil, fmt.Errorf("curve %d balance: %w", id, readErr(err))
	}
	b := &Balance{CurveID: id, Holder: holder, Balance: "0"}
	switch inner := clarity.Unwrap(v); {
	case inner == nil:
	case inner.Type == clarity.TypeUint:
		b.Balance = inner.Uint.Dec()
	case inner.Type == clarity.TypeTuple:
		b.Balance = amount(clarity.FlattenTuple(inner), "balance")
	}
	return b, nil
}

var errNoStats = fmt.Errorf("%w: no contract stats readable", perrors.ErrUnavailable)

// Stats reads the three contracts' get-stats counters and attaches the
// snapshot's summary. It never fails: unreadable counters are nil and the
// summary is nil only when snap is.
func (s *Service) Stats(ctx context.Context, snap *projection.Snapshot) *Stats {
	onChain, _ := cached(s, "stats", func() (*Stats, error) {
		var st Stats
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			st.Registry = flatten(optional(s.ledger.GetRegistryStats(gctx)))
			return nil
		})
		g.Go(func() error {
			st.TaskBoard = flatten(optional(s.ledger.GetTaskStats(gctx)))
			return nil
		})
		g.Go(func() error {
			st.Launchpad = flatten(optional(s.ledger.GetLaunchpadStats(gctx)))
			return nil
		})
		_ = g.Wait()
		if st.Registry == nil && st.TaskBoard == nil && st.Launchpad == nil {
			return &st, errNoStats
		}
		return &st, nil
	})

	out := *onChain
	out.Indexed = NewIndexedSummary(snap)
	return &out
}
