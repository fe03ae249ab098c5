package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	klog "github.com/Klingon-tech/shieldwallet/internal/log"
	"github.com/Klingon-tech/shieldwallet/internal/signer"
	"github.com/Klingon-tech/shieldwallet/pkg/types"
)

// RecoveryTimeout bounds one shared recovery pass.
const RecoveryTimeout = 10 * time.Minute

// AccountRecoverer is the slice of the signer protocol recovery needs.
type AccountRecoverer interface {
	RecoverAccount(ctx context.Context, p signer.RecoverAccountParams) (signer.RecoveredAccount, error)
}

// RecoveryResult summarizes one recovery run.
type RecoveryResult struct {
	NewEntries int  // Ledger entries not processed before this run.
	Recovered  int  // Notes the signer decrypted.
	Added      int  // Notes not already in the asset store.
	Skipped    bool // Nothing new on the ledger, the signer was not called.
}

// Recovery reconciles the ledger with the asset store through the signer.
type Recovery struct {
	view      *BlockchainStateView
	ledger    Ledger
	signer    AccountRecoverer
	assets    *AssetStore
	processed *ProcessedStore
	logger    zerolog.Logger

	runs singleflight.Group
}

// NewRecovery wires a recovery run over the given collaborators.
func NewRecovery(l Ledger, s AccountRecoverer, assets *AssetStore, processed *ProcessedStore) *Recovery {
	return &Recovery{
		view:      NewBlockchainStateView(l),
		ledger:    l,
		signer:    s,
		assets:    assets,
		processed: processed,
		logger:    klog.Recovery,
	}
}

// Run performs one recovery pass. Concurrent calls share a single pass.
//
// The shared pass is detached from the caller's cancellation and bounded by
// RecoveryTimeout instead, so one caller giving up does not fail the others.
// A cancelled caller returns ctx.Err() while the pass runs on.
//
// The processed set is persisted only after the recovered notes are stored,
// so an interrupted run reprocesses entries rather than losing notes.
func (r *Recovery) Run(ctx context.Context) (RecoveryResult, error) {
	ch := r.runs.DoChan("recover", func() (interface{}, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), RecoveryTimeout)
		defer cancel()
		return r.run(runCtx)
	})
	select {
	case <-ctx.Done():
		return RecoveryResult{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			r.logger.Debug().Msg("Joined running recovery")
		}
		if res.Err != nil {
			return RecoveryResult{}, res.Err
		}
		return res.Val.(RecoveryResult), nil
	}
}

func (r *Recovery) run(ctx context.Context) (RecoveryResult, error) {
	done := klog.Benchmark("recovery")
	defer done()

	processed, err := r.processed.Load()
	if err != nil {
		return RecoveryResult{}, err
	}

	var (
		fresh NewNotes
		voids []types.VoidNumber
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fresh, err = r.view.GetNewNotes(gctx, processed)
		return err
	})
	g.Go(func() error {
		var err error
		voids, err = r.ledger.VoidNumbers(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return RecoveryResult{}, fmt.Errorf("recovery: %w", err)
	}

	if fresh.Empty() {
		r.logger.Debug().Int("processed", len(processed)).Msg("No new ledger entries")
		return RecoveryResult{Skipped: true}, nil
	}

	account, err := r.signer.RecoverAccount(ctx, signer.RecoverAccountParams{
		VoidNumbers:    voids,
		UTXOs:          fresh.UTXOs,
		EncryptedNotes: fresh.EncryptedNotes,
	})
	if err != nil {
		return RecoveryResult{}, fmt.Errorf("recovery: %w", err)
	}

	notes := make([]Note, 0, len(account.Assets))
	for _, a := range account.Assets {
		notes = append(notes, NoteFromAsset(a))
	}
	added, err := r.assets.AddNotes(notes)
	if err != nil {
		return RecoveryResult{}, fmt.Errorf("recovery: store notes: %w", err)
	}
	if err := r.processed.Save(fresh.Processed); err != nil {
		return RecoveryResult{}, fmt.Errorf("recovery: save processed set: %w", err)
	}

	res := RecoveryResult{
		NewEntries: len(fresh.UTXOs),
		Recovered:  len(notes),
		Added:      added,
	}
	r.logger.Info().
		Int("new_entries", res.NewEntries).
		Int("recovered", res.Recovered).
		Int("added", res.Added).
		Msg("Recovery complete")
	return res, nil
}
