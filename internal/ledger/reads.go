package ledger

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/p-blackswan/agent-ledger-indexer/internal/clarity"
	perrors "github.com/p-blackswan/agent-ledger-indexer/internal/errors"
)

// Typed wrappers over the contracts' read-only functions. Each returns the
// raw decoded result; callers unwrap optionals and responses as needed.

func principalArg(p string) (string, error) {
	arg, err := clarity.EncodePrincipal(p)
	if err != nil {
		return "", fmt.Errorf("%w: %v", perrors.ErrInvalidInput, err)
	}
	return arg, nil
}

func amountArg(a *uint256.Int) (string, error) {
	arg, err := clarity.EncodeAmount(a)
	if err != nil {
		return "", fmt.Errorf("%w: %v", perrors.ErrInvalidInput, err)
	}
	return arg, nil
}

func (c *Client) callWithPrincipal(ctx context.Context, contract, fn, principal string, extra ...string) (*clarity.Value, error) {
	arg, err := principalArg(principal)
	if err != nil {
		return nil, err
	}
	return c.Call(ctx, contract, fn, append([]string{arg}, extra...)...)
}

// Agent registry.

func (c *Client) GetAgent(ctx context.Context, principal string) (*clarity.Value, error) {
	return c.callWithPrincipal(ctx, c.contracts.Registry, "get-agent", principal)
}

func (c *Client) GetCapability(ctx context.Context, principal string, index uint64) (*clarity.Value, error) {
	return c.callWithPrincipal(ctx, c.contracts.Registry, "get-capability", principal, clarity.EncodeUint(index))
}

func (c *Client) GetRegistryStats(ctx context.Context) (*clarity.Value, error) {
	return c.Call(ctx, c.contracts.Registry, "get-stats")
}

// Reputation.

func (c *Client) GetReputation(ctx context.Context, principal string) (*clarity.Value, error) {
	return c.callWithPrincipal(ctx, c.contracts.Reputation, "get-reputation", principal)
}

func (c *Client) GetAverageScore(ctx context.Context, principal string) (*clarity.Value, error) {
	return c.callWithPrincipal(ctx, c.contracts.Reputation, "get-average-score", principal)
}

// Vault.

func (c *Client) GetVault(ctx context.Context, principal string) (*clarity.Value, error) {
	return c.callWithPrincipal(ctx, c.contracts.Vault, "get-vault", principal)
}

// Task board.

func (c *Client) GetTask(ctx context.Context, id uint64) (*clarity.Value, error) {
	return c.Call(ctx, c.contracts.TaskBoard, "get-task", clarity.EncodeUint(id))
}

func (c *Client) GetBidCount(ctx context.Context, taskID uint64) (*clarity.Value, error) {
	return c.Call(ctx, c.contracts.TaskBoard, "get-bid-count", clarity.EncodeUint(taskID))
}

func (c *Client) GetBidAt(ctx context.Context, taskID, index uint64) (*clarity.Value, error) {
	return c.Call(ctx, c.contracts.TaskBoard, "get-bid-at", clarity.EncodeUint(taskID), clarity.EncodeUint(index))
}

func (c *Client) GetBid(ctx context.Context, taskID uint64, bidder string) (*clarity.Value, error) {
	arg, err := principalArg(bidder)
	if err != nil {
		return nil, err
	}
	return c.Call(ctx, c.contracts.TaskBoard, "get-bid", clarity.EncodeUint(taskID), arg)
}

func (c *Client) GetTaskStats(ctx context.Context) (*clarity.Value, error) {
	return c.Call(ctx, c.contracts.TaskBoard, "get-stats")
}

// Launchpad.

func (c *Client) GetCurve(ctx context.Context, id uint64) (*clarity.Value, error) {
	return c.Call(ctx, c.contracts.Launchpad, "get-curve", clarity.EncodeUint(id))
}

func (c *Client) GetCurveBalance(ctx context.Context, curveID uint64, holder string) (*clarity.Value, error) {
	arg, err := principalArg(holder)
	if err != nil {
		return nil, err
	}
	return c.Call(ctx, c.contracts.Launchpad, "get-balance", clarity.EncodeUint(curveID), arg)
}

func (c *Client) GetAgentCurve(ctx context.Context, agent string) (*clarity.Value, error) {
	return c.callWithPrincipal(ctx, c.contracts.Launchpad, "get-agent-curve", agent)
}

func (c *Client) GetBuyQuote(ctx context.Context, curveID uint64, stxIn *uint256.Int) (*clarity.Value, error) {
	arg, err := amountArg(stxIn)
	if err != nil {
		return nil, err
	}
	return c.Call(ctx, c.contracts.Launchpad, "get-buy-quote", clarity.EncodeUint(curveID), arg)
}

func (c *Client) GetSellQuote(ctx context.Context, curveID uint64, tokensIn *uint256.Int) (*clarity.Value, error) {
	arg, err := amountArg(tokensIn)
	if err != nil {
		return nil, err
	}
	return c.Call(ctx, c.contracts.Launchpad, "get-sell-quote", clarity.EncodeUint(curveID), arg)
}

func (c *Client) GetCurvePrice(ctx context.Context, curveID uint64) (*clarity.Value, error) {
	return c.Call(ctx, c.contracts.Launchpad, "get-price", clarity.EncodeUint(curveID))
}

func (c *Client) GetLaunchpadStats(ctx context.Context) (*clarity.Value, error) {
	return c.Call(ctx, c.contracts.Launchpad, "get-stats")
}
