package wallet

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Klingon-tech/shieldwallet/internal/signer"
	"github.com/Klingon-tech/shieldwallet/pkg/types"
)

// Mint builds a transaction that creates a private note of value from the
// caller's public balance. Minting with value 0 produces a filler note.
func (c *Core) Mint(ctx context.Context, kind types.AssetID, value types.Balance) (*PendingTx, error) {
	tx, err := c.begin(TxMint, kind, value)
	if err != nil {
		return nil, err
	}
	return c.finish(tx, c.buildMint(ctx, tx))
}

func (c *Core) buildMint(ctx context.Context, tx *PendingTx) error {
	kp, err := c.stage(tx)
	if err != nil {
		return err
	}
	params := signer.GenerateAssetParams{AssetID: tx.AssetID, Value: tx.Value, Keypath: kp}
	asset, err := c.signer.GenerateAsset(ctx, params)
	if err != nil {
		return fmt.Errorf("generate asset: %w", err)
	}
	mint, err := c.signer.GenerateMintData(ctx, params)
	if err != nil {
		return fmt.Errorf("generate mint data: %w", err)
	}
	if mint.AssetID != tx.AssetID || mint.Value != tx.Value {
		return fmt.Errorf("generate mint data: signer returned asset %d value %d, want asset %d value %d",
			mint.AssetID, mint.Value, tx.AssetID, tx.Value)
	}
	tx.Payloads = []Payload{{Call: CallMintPrivateAsset, Data: mint.Encode()}}
	tx.Outputs = []Note{NoteFromAsset(asset)}
	return nil
}

// PrivateTransfer builds a transaction paying value of kind to receiver.
//
// With n selected notes the batch holds n-1 two-input transfers: each of
// the first n-2 merges the running note with the next selected note into a
// new internal note, and the last pays the receiver and returns the change.
func (c *Core) PrivateTransfer(ctx context.Context, kind types.AssetID, value types.Balance, receiver types.ShieldedAddress) (*PendingTx, error) {
	if receiver.IsZero() {
		return nil, fmt.Errorf("private transfer: empty receiving address")
	}
	if value == 0 {
		return nil, fmt.Errorf("private transfer: %w: zero value", ErrInvalidAmount)
	}
	tx, err := c.begin(TxPrivateTransfer, kind, value)
	if err != nil {
		return nil, err
	}
	tx.Receiver = receiver
	return c.finish(tx, c.buildPrivateTransfer(ctx, tx))
}

func (c *Core) buildPrivateTransfer(ctx context.Context, tx *PendingTx) error {
	sel, err := c.selectForSpend(ctx, tx)
	if err != nil {
		return err
	}
	sim := NewSimulatedLedger(c.ledger)
	notes := sel.Notes

	acc, steps, err := c.accumulate(ctx, tx, sim, notes[:len(notes)-1])
	if err != nil {
		return err
	}
	last, err := c.withShards(ctx, sim, acc, notes[len(notes)-1])
	if err != nil {
		return err
	}
	changeKp, err := c.stage(tx)
	if err != nil {
		return err
	}
	change := sel.Total - tx.Value
	steps = append(steps, signer.GeneratePrivateTransferParams{
		Inputs:         last,
		ChangeKeypath:  changeKp,
		NonChangeValue: tx.Value,
		ChangeValue:    change,
	})
	changeNote, err := c.generateNote(ctx, tx.AssetID, change, changeKp)
	if err != nil {
		return err
	}
	tx.Outputs = append(tx.Outputs, changeNote)

	batch, err := c.signer.GeneratePrivateTransferData(ctx, signer.GeneratePrivateTransferBatchParams{
		AssetID:   tx.AssetID,
		Receiver:  tx.Receiver,
		Transfers: steps,
	})
	if err != nil {
		return fmt.Errorf("generate private transfer data: %w", err)
	}
	if len(batch.Transfers) != len(steps) {
		return fmt.Errorf("generate private transfer data: signer returned %d transfers for %d steps", len(batch.Transfers), len(steps))
	}
	for _, t := range batch.Transfers {
		tx.Payloads = append(tx.Payloads, Payload{Call: CallPrivateTransfer, Data: t.Encode()})
	}
	return nil
}

// Reclaim builds a transaction that moves value of kind from private notes
// back to the caller's public balance.
//
// With n selected notes the batch holds n-2 merging transfers followed by
// one reclaim of the running note and the last selected note.
func (c *Core) Reclaim(ctx context.Context, kind types.AssetID, value types.Balance) (*PendingTx, error) {
	if value == 0 {
		return nil, fmt.Errorf("reclaim: %w: zero value", ErrInvalidAmount)
	}
	tx, err := c.begin(TxReclaim, kind, value)
	if err != nil {
		return nil, err
	}
	return c.finish(tx, c.buildReclaim(ctx, tx))
}

func (c *Core) buildReclaim(ctx context.Context, tx *PendingTx) error {
	sel, err := c.selectForSpend(ctx, tx)
	if err != nil {
		return err
	}
	sim := NewSimulatedLedger(c.ledger)
	notes := sel.Notes

	acc, steps, err := c.accumulate(ctx, tx, sim, notes[:len(notes)-1])
	if err != nil {
		return err
	}
	last, err := c.withShards(ctx, sim, acc, notes[len(notes)-1])
	if err != nil {
		return err
	}
	changeKp, err := c.stage(tx)
	if err != nil {
		return err
	}
	changeNote, err := c.generateNote(ctx, tx.AssetID, sel.Total-tx.Value, changeKp)
	if err != nil {
		return err
	}
	tx.Outputs = append(tx.Outputs, changeNote)

	batch, err := c.signer.GenerateReclaimData(ctx, signer.GenerateReclaimBatchParams{
		Transfers: steps,
		Reclaim: signer.GenerateReclaimParams{
			AssetID:       tx.AssetID,
			Inputs:        last,
			ChangeKeypath: changeKp,
			ReclaimValue:  tx.Value,
		},
	})
	if err != nil {
		return fmt.Errorf("generate reclaim data: %w", err)
	}
	if len(batch.Transfers) != len(steps) {
		return fmt.Errorf("generate reclaim data: signer returned %d transfers for %d steps", len(batch.Transfers), len(steps))
	}
	for _, t := range batch.Transfers {
		tx.Payloads = append(tx.Payloads, Payload{Call: CallPrivateTransfer, Data: t.Encode()})
	}
	tx.Payloads = append(tx.Payloads, Payload{Call: CallReclaim, Data: batch.Reclaim.Encode()})
	return nil
}

// selectForSpend refreshes the asset store and selects notes for tx.
func (c *Core) selectForSpend(ctx context.Context, tx *PendingTx) (*CoinSelection, error) {
	if _, err := c.Recover(ctx); err != nil {
		return nil, err
	}
	notes, err := c.SpendableNotes(ctx, tx.AssetID)
	if err != nil {
		return nil, err
	}
	sel, err := SelectCoins(tx.Value, notes, tx.AssetID)
	if err != nil {
		return nil, err
	}
	if n := sel.ZeroCoinsRequired(); n > 0 {
		return nil, &FillerNotesError{AssetID: tx.AssetID, Required: n}
	}
	tx.Selection = sel
	c.logger.Debug().
		Int("notes", len(sel.Notes)).
		Uint64("total", uint64(sel.Total)).
		Uint64("change", uint64(sel.Change)).
		Msg("Selected notes")
	return sel, nil
}

// accumulate merges notes pairwise into a single running note. Each merge
// is a transfer whose change output carries the sum to a fresh internal
// path and whose other output is a zero-value note to another one. Both
// outputs are registered on sim so later steps see them in their shards.
// It returns the running note and the transfer steps.
func (c *Core) accumulate(ctx context.Context, tx *PendingTx, sim *SimulatedLedger, notes []Note) (Note, []signer.GeneratePrivateTransferParams, error) {
	acc := notes[0]
	var steps []signer.GeneratePrivateTransferParams
	for _, next := range notes[1:] {
		inputs, err := c.withShards(ctx, sim, acc, next)
		if err != nil {
			return Note{}, nil, err
		}
		sumKp, err := c.stage(tx)
		if err != nil {
			return Note{}, nil, err
		}
		zeroKp, err := c.stage(tx)
		if err != nil {
			return Note{}, nil, err
		}
		sum, err := addValues(acc.Value, next.Value)
		if err != nil {
			return Note{}, nil, err
		}
		steps = append(steps, signer.GeneratePrivateTransferParams{
			Inputs:           inputs,
			ChangeKeypath:    sumKp,
			NonChangeKeypath: &zeroKp,
			NonChangeValue:   0,
			ChangeValue:      sum,
		})

		zero, err := c.generateNote(ctx, tx.AssetID, 0, zeroKp)
		if err != nil {
			return Note{}, nil, err
		}
		merged, err := c.generateNote(ctx, tx.AssetID, sum, sumKp)
		if err != nil {
			return Note{}, nil, err
		}
		sim.AddOffChain(zero)
		sim.AddOffChain(merged)
		tx.Outputs = append(tx.Outputs, zero)
		acc = merged
	}
	return acc, steps, nil
}

// withShards builds the transfer inputs for a and b with their current
// shard contents.
func (c *Core) withShards(ctx context.Context, sim *SimulatedLedger, a, b Note) ([2]signer.TransferInput, error) {
	var shards [2][]types.UTXO
	g, gctx := errgroup.WithContext(ctx)
	for i, n := range [2]Note{a, b} {
		g.Go(func() error {
			shard, err := sim.Shard(gctx, n.ShardIndex)
			if err != nil {
				return fmt.Errorf("fetch shard %d: %w", n.ShardIndex, err)
			}
			shards[i] = shard
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return [2]signer.TransferInput{}, err
	}
	return [2]signer.TransferInput{
		{Value: a.Value, Keypath: a.Keypath, Shard: shards[0]},
		{Value: b.Value, Keypath: b.Keypath, Shard: shards[1]},
	}, nil
}

// generateNote asks the signer for the note value of kind owned by keypath.
func (c *Core) generateNote(ctx context.Context, kind types.AssetID, value types.Balance, keypath string) (Note, error) {
	asset, err := c.signer.GenerateAsset(ctx, signer.GenerateAssetParams{AssetID: kind, Value: value, Keypath: keypath})
	if err != nil {
		return Note{}, fmt.Errorf("generate asset: %w", err)
	}
	return NoteFromAsset(asset), nil
}
