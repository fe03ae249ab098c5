// Package ledger queries a ledger node for the shielded-pool state the wallet
// needs: published void numbers and the UTXOs stored in each shard.
package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/ratelimit"

	klog "github.com/Klingon-tech/shieldwallet/internal/log"
	"github.com/Klingon-tech/shieldwallet/internal/rpcclient"
	"github.com/Klingon-tech/shieldwallet/pkg/types"
)

// RPC method names served by the node.
const (
	MethodVoidNumbers  = "mantaPay_voidNumbers"
	MethodLedgerShards = "mantaPay_ledgerShards"
)

// DefaultMaxRPS is the default request rate against the node.
const DefaultMaxRPS = 20

// ShardEntry is one note stored in a ledger shard.
type ShardEntry struct {
	ShardIndex    uint8            `json:"shard_index"`
	UTXO          types.UTXO       `json:"utxo"`
	EncryptedNote types.Ciphertext `json:"encrypted_note"`
}

// Client reads shielded-pool state over JSON-RPC.
type Client struct {
	rpc     *rpcclient.Client
	limiter ratelimit.Limiter
}

// New creates a ledger client. maxRPS <= 0 disables pacing.
func New(endpoint string, timeout time.Duration, maxRPS int) *Client {
	limiter := ratelimit.NewUnlimited()
	if maxRPS > 0 {
		limiter = ratelimit.New(maxRPS)
	}
	return &Client{
		rpc:     rpcclient.NewWithTimeout(endpoint, timeout),
		limiter: limiter,
	}
}

// VoidNumbers returns every void number published on chain.
func (c *Client) VoidNumbers(ctx context.Context) ([]types.VoidNumber, error) {
	c.limiter.Take()
	var out []types.VoidNumber
	if err := c.rpc.CallContext(ctx, MethodVoidNumbers, nil, &out); err != nil {
		return nil, fmt.Errorf("query void numbers: %w", err)
	}
	klog.Ledger.Debug().Int("count", len(out)).Msg("Fetched void numbers")
	return out, nil
}

// LedgerShards returns the entries of one shard, or of every shard when
// shardIndex is nil. Entries keep the node's order within each shard.
func (c *Client) LedgerShards(ctx context.Context, shardIndex *uint8) ([]ShardEntry, error) {
	c.limiter.Take()
	// Params stay omitted for all shards. The index goes out as an int
	// because a []uint8 marshals as a base64 string.
	var params interface{}
	if shardIndex != nil {
		params = []int{int(*shardIndex)}
	}
	var out []ShardEntry
	if err := c.rpc.CallContext(ctx, MethodLedgerShards, params, &out); err != nil {
		return nil, fmt.Errorf("query ledger shards: %w", err)
	}
	if shardIndex != nil {
		for _, e := range out {
			if e.ShardIndex != *shardIndex {
				return nil, fmt.Errorf("query ledger shards: node returned shard %d for shard %d", e.ShardIndex, *shardIndex)
			}
		}
	}
	klog.Ledger.Debug().Int("count", len(out)).Msg("Fetched ledger shards")
	return out, nil
}

// Endpoint returns the node URL.
func (c *Client) Endpoint() string {
	return c.rpc.Endpoint()
}
