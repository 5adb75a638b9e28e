// Client wraps the chain's JSON-RPC surface the way the upstream monitor's
// internal/rpc package wraps its EVM node: dial once, reuse the connection,
// and expose just the few calls this service needs (metagraph fetch,
// signature check, block height, header subscription) instead of a
// full chain SDK. Subnet metagraphs aren't EVM state, so the call is a
// plain JSON-RPC method rather than an ABI-encoded contract call — the
// go-ethereum rpc.Client is used purely as a JSON-RPC transport, the same
// role rpc.Client plays underneath the teacher's ethclient.Client.
package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/resi-labs-ai/resi-labs-api/internal/logger"
)

type metagraphKey struct {
	Hotkey          string  `json:"hotkey"`
	Index           int     `json:"index"`
	ValidatorPermit bool    `json:"validator_permit"`
	Stake           float64 `json:"stake"`
}

type metagraphResult struct {
	Keys []metagraphKey `json:"keys"`
}

// Client is a single subnet RPC endpoint. Multiple Clients are pooled by
// NodeManager for redundancy.
type Client struct {
	Label string
	raw   *rpc.Client
	url   string
}

func Dial(ctx context.Context, label, url string) (*Client, error) {
	raw, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial chain node %s: %w", label, err)
	}
	return &Client{Label: label, raw: raw, url: url}, nil
}

func (c *Client) Close() {
	if c.raw != nil {
		c.raw.Close()
	}
}

// FetchMetagraph retrieves the full set of registered keys for a subnet.
func (c *Client) FetchMetagraph(ctx context.Context, netUID int) (*Snapshot, error) {
	var res metagraphResult
	if err := c.raw.CallContext(ctx, &res, "subnet_getMetagraph", netUID); err != nil {
		return nil, fmt.Errorf("subnet_getMetagraph: %w", err)
	}

	keys := make(map[string]KeyInfo, len(res.Keys))
	for _, k := range res.Keys {
		keys[k.Hotkey] = KeyInfo{Index: k.Index, Validator: k.ValidatorPermit, Stake: k.Stake}
	}
	return &Snapshot{NetUID: netUID, Keys: keys}, nil
}

// VerifySignature asks the chain node to verify a signature produced by pk
// over msg. Nothing in this module calls it: request signatures are
// verified in-process (see internal/verify), and View.Lookup's stale-snapshot
// fallback re-fetches the metagraph instead.
func (c *Client) VerifySignature(ctx context.Context, pk, msg, sig []byte) (bool, error) {
	var ok bool
	if err := c.raw.CallContext(ctx, &ok, "subnet_verifySignature", pk, msg, sig); err != nil {
		return false, fmt.Errorf("subnet_verifySignature: %w", err)
	}
	return ok, nil
}

// BlockHeight is used by NodeManager to rank endpoints; chain_getHeader is
// the generic JSON-RPC header query most substrate-family nodes expose.
func (c *Client) BlockHeight(ctx context.Context) (uint64, error) {
	var height uint64
	if err := c.raw.CallContext(ctx, &height, "chain_getHeader"); err != nil {
		return 0, err
	}
	return height, nil
}

// SubscribeHeaders opens a subscription used only to eagerly trigger a
// resync on new blocks, tightening the window between a chain state
// change and this view reflecting it, without abandoning the periodic
// SYNC_INTERVAL poll as the source of truth.
func (c *Client) SubscribeHeaders(ctx context.Context, headers chan<- uint64) (*rpc.ClientSubscription, error) {
	ch := make(chan uint64, 16)
	sub, err := c.raw.Subscribe(ctx, "chain", ch, "newHeads")
	if err != nil {
		return nil, err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case h, ok := <-ch:
				if !ok {
					return
				}
				select {
				case headers <- h:
				default:
					logger.Debug("CHAIN", "dropped header notification, channel full")
				}
			}
		}
	}()
	return sub, nil
}
