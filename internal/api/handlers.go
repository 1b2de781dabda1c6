package api

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/agent-ledger-indexer/internal/detail"
	perrors "github.com/p-blackswan/agent-ledger-indexer/internal/errors"
	"github.com/p-blackswan/agent-ledger-indexer/internal/health"
	"github.com/p-blackswan/agent-ledger-indexer/internal/projection"
)

const (
	defaultLeaderboardLimit = 50
	maxLeaderboardLimit     = 500
)

type handlers struct {
	projection   Projection
	details      Details
	checker      *health.Checker
	cacheControl string
	logger       zerolog.Logger
}

// unavailable marks a projection failure; the cache only fails when it has
// never built a snapshot.
func unavailable(err error) error {
	return fmt.Errorf("%w: %v", perrors.ErrUnavailable, err)
}

func parseID(c *fiber.Ctx, name string) (uint64, error) {
	raw := c.Params(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a non-negative integer", perrors.ErrInvalidInput, name, raw)
	}
	return id, nil
}

// listAgents handles GET /api/agents.
func (h *handlers) listAgents(c *fiber.Ctx) error {
	agents, err := h.projection.Agents(c.UserContext())
	if err != nil {
		return errorResponse(c, h.logger, unavailable(err))
	}
	out := make([]AgentDTO, 0, len(agents))
	for _, a := range agents {
		out = append(out, agentDTO(a))
	}
	c.Set(fiber.HeaderCacheControl, h.cacheControl)
	return c.JSON(out)
}

// listTasks handles GET /api/tasks.
func (h *handlers) listTasks(c *fiber.Ctx) error {
	tasks, err := h.projection.Tasks(c.UserContext())
	if err != nil {
		return errorResponse(c, h.logger, unavailable(err))
	}
	out := make([]TaskDTO, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskDTO(t))
	}
	c.Set(fiber.HeaderCacheControl, h.cacheControl)
	return c.JSON(out)
}

// listCurves handles GET /api/curves.
func (h *handlers) listCurves(c *fiber.Ctx) error {
	curves, err := h.projection.Curves(c.UserContext())
	if err != nil {
		return errorResponse(c, h.logger, unavailable(err))
	}
	out := make([]CurveDTO, 0, len(curves))
	for _, cv := range curves {
		out = append(out, curveDTO(cv))
	}
	c.Set(fiber.HeaderCacheControl, h.cacheControl)
	return c.JSON(out)
}

// leaderboard handles GET /api/leaderboard?limit=N.
func (h *handlers) leaderboard(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultLeaderboardLimit)
	if limit < 1 || limit > maxLeaderboardLimit {
		return problemResponse(c, fiber.StatusBadRequest, "invalid_input", "Bad Request",
			fmt.Sprintf("limit must be between 1 and %d", maxLeaderboardLimit))
	}
	agents, err := h.projection.Agents(c.UserContext())
	if err != nil {
		return errorResponse(c, h.logger, unavailable(err))
	}

	ranked := projection.Rank(agents)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]LeaderboardEntry, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, LeaderboardEntry{
			Rank:         r.Rank,
			Score:        r.Score,
			AverageScore: r.AverageScore,
			Agent:        agentDTO(r.Agent),
		})
	}
	c.Set(fiber.HeaderCacheControl, h.cacheControl)
	return c.JSON(out)
}

// stats handles GET /api/stats. It answers even when nothing can be read.
func (h *handlers) stats(c *fiber.Ctx) error {
	snap, err := h.projection.GetOrRebuild(c.UserContext())
	if err != nil {
		h.logger.Warn().Err(err).Msg("stats without snapshot")
	}
	return c.JSON(h.details.Stats(c.UserContext(), snap))
}

// agent handles GET /api/agents/:principal.
func (h *handlers) agent(c *fiber.Ctx) error {
	d, err := h.details.Agent(c.UserContext(), c.Params("principal"))
	if err != nil {
		return errorResponse(c, h.logger, err)
	}
	return c.JSON(d)
}

// task handles GET /api/tasks/:id.
func (h *handlers) task(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return errorResponse(c, h.logger, err)
	}
	d, err := h.details.Task(c.UserContext(), id)
	if err != nil {
		return errorResponse(c, h.logger, err)
	}
	return c.JSON(d)
}

// curve handles GET /api/curves/:id.
func (h *handlers) curve(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return errorResponse(c, h.logger, err)
	}
	d, err := h.details.Curve(c.UserContext(), id)
	if err != nil {
		return errorResponse(c, h.logger, err)
	}
	return c.JSON(d)
}

// quote handles GET /api/curves/:id/quote?side=buy|sell&amount=N.
func (h *handlers) quote(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return errorResponse(c, h.logger, err)
	}
	side, err := detail.ParseSide(c.Query("side", string(detail.Buy)))
	if err != nil {
		return errorResponse(c, h.logger, err)
	}
	raw := c.Query("amount")
	amount, err := uint256.FromDecimal(raw)
	if raw == "" || err != nil {
		return errorResponse(c, h.logger,
			fmt.Errorf("%w: amount %q is not a non-negative integer", perrors.ErrInvalidInput, raw))
	}
	q, err := h.details.Quote(c.UserContext(), id, side, *amount)
	if err != nil {
		return errorResponse(c, h.logger, err)
	}
	return c.JSON(q)
}

// balance handles GET /api/curves/:id/balance/:holder.
func (h *handlers) balance(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return errorResponse(c, h.logger, err)
	}
	b, err := h.details.Balance(c.UserContext(), id, c.Params("holder"))
	if err != nil {
		return errorResponse(c, h.logger, err)
	}
	return c.JSON(b)
}

// liveness handles GET /healthz.
func (h *handlers) liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// readiness handles GET /readyz.
func (h *handlers) readiness(c *fiber.Ctx) error {
	if h.checker == nil {
		return c.JSON(fiber.Map{"status": "ready"})
	}
	results := h.checker.RunAll(c.UserContext())
	if !health.Ready(results) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not_ready",
			"checks": results,
		})
	}
	return c.JSON(fiber.Map{
		"status": "ready",
		"checks": results,
	})
}
