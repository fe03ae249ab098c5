// Package wallet implements the shielded wallet core: note and address
// bookkeeping, coin selection, account recovery and transaction building
// through the external signer.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	klog "github.com/Klingon-tech/shieldwallet/internal/log"
	"github.com/Klingon-tech/shieldwallet/internal/signer"
	"github.com/Klingon-tech/shieldwallet/internal/storage"
	"github.com/Klingon-tech/shieldwallet/pkg/types"
)

// Signer is the signer protocol used by the core. *signer.Client implements it.
type Signer interface {
	AccountRecoverer
	DeriveShieldedAddress(ctx context.Context, keypath string) (types.ShieldedAddress, error)
	GenerateAsset(ctx context.Context, p signer.GenerateAssetParams) (signer.Asset, error)
	GenerateMintData(ctx context.Context, p signer.GenerateAssetParams) (signer.MintData, error)
	GeneratePrivateTransferData(ctx context.Context, p signer.GeneratePrivateTransferBatchParams) (signer.PrivateTransferBatch, error)
	GenerateReclaimData(ctx context.Context, p signer.GenerateReclaimBatchParams) (signer.ReclaimBatch, error)
}

// TxKind is the kind of a built transaction.
type TxKind string

// Transaction kinds.
const (
	TxMint            TxKind = "mint"
	TxPrivateTransfer TxKind = "private_transfer"
	TxReclaim         TxKind = "reclaim"
)

// TxStatus tracks a built transaction through submission.
type TxStatus string

// Transaction statuses.
const (
	TxProcessing TxStatus = "processing"
	TxFinalized  TxStatus = "finalized"
	TxFailed     TxStatus = "failed"
)

// Ledger calls a payload is submitted as.
const (
	CallMintPrivateAsset = "mantaPay.mintPrivateAsset"
	CallPrivateTransfer  = "mantaPay.privateTransfer"
	CallReclaim          = "mantaPay.reclaim"
)

// Payload is one encoded ledger call. A transaction's payloads are
// submitted together, in order, as a single batch.
type Payload struct {
	Call string
	Data []byte
}

// PendingTx is a built transaction waiting for the ledger outcome.
// Exactly one of Confirm or Abort must be called for it.
type PendingTx struct {
	ID        uuid.UUID
	Kind      TxKind
	AssetID   types.AssetID
	Value     types.Balance
	Receiver  types.ShieldedAddress
	Selection *CoinSelection
	Payloads  []Payload

	// Outputs are the notes the wallet will own once the transaction is
	// on chain. They are stored on Confirm.
	Outputs []Note

	// Keypaths are the internal paths staged for this transaction.
	Keypaths []string

	Created time.Time
}

// Options configures a Core.
type Options struct {
	Name          string
	CoinType      uint32
	StrictStaging bool
}

// Core is the wallet core. It owns the address, asset and processed-note
// stores of one wallet and serializes transaction building: only one
// transaction may be pending at a time.
type Core struct {
	name      string
	signer    Signer
	ledger    Ledger
	addresses *AddressStore
	assets    *AssetStore
	processed *ProcessedStore
	recovery  *Recovery
	events    *Events
	logger    zerolog.Logger

	addrMu sync.Mutex

	mu      sync.Mutex
	pending *PendingTx
}

// New creates a wallet core over db. db should be namespaced to this wallet.
func New(db storage.DB, s Signer, l Ledger, opts Options) *Core {
	if opts.Name == "" {
		opts.Name = "default"
	}
	logger := klog.WithWallet(opts.Name)
	assets := NewAssetStore(db, logger)
	processed := NewProcessedStore(db)
	return &Core{
		name:      opts.Name,
		signer:    s,
		ledger:    l,
		addresses: NewAddressStore(db, opts.CoinType, opts.StrictStaging, logger),
		assets:    assets,
		processed: processed,
		recovery:  NewRecovery(l, s, assets, processed),
		events:    NewEvents(logger),
		logger:    logger,
	}
}

// Name returns the wallet name.
func (c *Core) Name() string { return c.name }

// Addresses returns the wallet's address store.
func (c *Core) Addresses() *AddressStore { return c.addresses }

// Assets returns the wallet's asset store.
func (c *Core) Assets() *AssetStore { return c.assets }

// Subscribe returns a channel of wallet events and a function that ends the
// subscription.
func (c *Core) Subscribe(buffer int) (<-chan Event, func()) {
	return c.events.Subscribe(buffer)
}

// Pending returns the transaction awaiting Confirm or Abort, or nil.
func (c *Core) Pending() *PendingTx {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Recover runs account recovery and publishes its outcome.
func (c *Core) Recover(ctx context.Context) (RecoveryResult, error) {
	c.events.Publish(Event{Kind: EventRecoveryStarted})
	res, err := c.recovery.Run(ctx)
	if err != nil {
		c.events.Publish(Event{Kind: EventRecoveryFailed, Err: err})
		return RecoveryResult{}, err
	}
	c.events.Publish(Event{Kind: EventRecoveryFinished, Recovery: &res})
	return res, nil
}

// SpendableNotes returns the stored notes of kind whose void numbers are
// not yet on chain, oldest first.
func (c *Core) SpendableNotes(ctx context.Context, kind types.AssetID) ([]Note, error) {
	notes, err := c.assets.LoadNotes()
	if err != nil {
		return nil, err
	}
	voids, err := c.ledger.VoidNumbers(ctx)
	if err != nil {
		return nil, err
	}
	spent := make(map[types.VoidNumber]struct{}, len(voids))
	for _, v := range voids {
		spent[v] = struct{}{}
	}
	var out []Note
	for _, n := range notes {
		if n.AssetID != kind {
			continue
		}
		if _, ok := spent[n.VoidNumber]; ok {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// Balance returns the total value of the spendable notes of kind.
func (c *Core) Balance(ctx context.Context, kind types.AssetID) (types.Balance, error) {
	notes, err := c.SpendableNotes(ctx, kind)
	if err != nil {
		return 0, err
	}
	var total types.Balance
	for _, n := range notes {
		if total, err = addValues(total, n.Value); err != nil {
			return 0, fmt.Errorf("asset %d: %w", kind, err)
		}
	}
	return total, nil
}

// NextExternalAddress derives and records a new receiving address.
func (c *Core) NextExternalAddress(ctx context.Context) (AddressEntry, error) {
	c.addrMu.Lock()
	defer c.addrMu.Unlock()

	kp, err := c.addresses.NextExternalKeypath()
	if err != nil {
		return AddressEntry{}, err
	}
	addr, err := c.signer.DeriveShieldedAddress(ctx, kp)
	if err != nil {
		return AddressEntry{}, fmt.Errorf("derive address: %w", err)
	}
	entry := AddressEntry{Keypath: kp, Address: addr.String()}
	if err := c.addresses.SaveExternalAddress(entry); err != nil {
		return AddressEntry{}, err
	}
	c.logger.Info().Str("keypath", kp).Msg("Derived receiving address")
	c.events.Publish(Event{Kind: EventAddressDerived, Address: entry.Address})
	return entry, nil
}

// Confirm records that tx reached the ledger: its staged internal paths
// become permanent and its outputs are stored. An error from storing the
// outputs is returned after the transaction is finalized.
func (c *Core) Confirm(tx *PendingTx) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkPending(tx); err != nil {
		return err
	}
	if err := c.addresses.CommitInternalAddresses(); err != nil {
		return err
	}
	c.pending = nil
	c.logger.Info().Str("tx", tx.ID.String()).Str("kind", string(tx.Kind)).Msg("Transaction finalized")
	c.events.Publish(Event{Kind: EventTxStatus, TxID: tx.ID, TxKind: tx.Kind, Status: TxFinalized})

	// The transaction is on chain even if its outputs cannot be stored.
	if _, err := c.assets.AddNotes(tx.Outputs); err != nil {
		c.logger.Error().Err(err).Str("tx", tx.ID.String()).Msg("Failed to store transaction outputs")
		return fmt.Errorf("store outputs of %s: %w", tx.ID, err)
	}
	return nil
}

// Abort records that tx will not reach the ledger and releases its staged
// internal paths.
func (c *Core) Abort(tx *PendingTx) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkPending(tx); err != nil {
		return err
	}
	if err := c.addresses.RollBackInternalAddresses(); err != nil {
		return err
	}
	c.pending = nil
	c.logger.Info().Str("tx", tx.ID.String()).Str("kind", string(tx.Kind)).Msg("Transaction aborted")
	c.events.Publish(Event{Kind: EventTxStatus, TxID: tx.ID, TxKind: tx.Kind, Status: TxFailed})
	return nil
}

func (c *Core) checkPending(tx *PendingTx) error {
	if tx == nil || c.pending == nil || c.pending.ID != tx.ID {
		return ErrUnknownTx
	}
	return nil
}

// Reset clears the address book, the notes and the processed set. It is an
// explicit user action and fails while a transaction is pending.
func (c *Core) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return fmt.Errorf("%w: transaction %s is pending", ErrStaleStagingWindow, c.pending.ID)
	}
	if err := c.addresses.Reset(); err != nil {
		return err
	}
	if err := c.assets.Reset(); err != nil {
		return err
	}
	if err := c.processed.Reset(); err != nil {
		return err
	}
	c.logger.Warn().Msg("Wallet state reset")
	c.events.Publish(Event{Kind: EventReset})
	return nil
}

// begin reserves the single pending slot for a new transaction. Internal
// paths left staged by an interrupted session are released first.
func (c *Core) begin(kind TxKind, asset types.AssetID, value types.Balance) (*PendingTx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return nil, fmt.Errorf("%w: transaction %s is pending", ErrStaleStagingWindow, c.pending.ID)
	}
	staged, err := c.addresses.Staged()
	if err != nil {
		return nil, err
	}
	if staged > 0 {
		c.logger.Warn().Int("staged", staged).Msg("Releasing internal addresses from an interrupted session")
		if err := c.addresses.RollBackInternalAddresses(); err != nil {
			return nil, err
		}
	}
	tx := &PendingTx{
		ID:      uuid.New(),
		Kind:    kind,
		AssetID: asset,
		Value:   value,
		Created: time.Now(),
	}
	c.pending = tx
	return tx, nil
}

// finish publishes a built transaction, or undoes a failed build.
func (c *Core) finish(tx *PendingTx, buildErr error) (*PendingTx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if buildErr == nil {
		c.logger.Info().
			Str("tx", tx.ID.String()).
			Str("kind", string(tx.Kind)).
			Uint64("value", uint64(tx.Value)).
			Int("payloads", len(tx.Payloads)).
			Msg("Transaction built")
		c.events.Publish(Event{Kind: EventTxStatus, TxID: tx.ID, TxKind: tx.Kind, Status: TxProcessing})
		return tx, nil
	}

	c.pending = nil
	if len(tx.Keypaths) > 0 {
		if err := c.addresses.RollBackInternalAddresses(); err != nil {
			return nil, errors.Join(buildErr, err)
		}
	}
	c.logger.Warn().Err(buildErr).Str("kind", string(tx.Kind)).Msg("Transaction build failed")
	return nil, buildErr
}

// stage allocates an internal path for tx.
func (c *Core) stage(tx *PendingTx) (string, error) {
	kp, err := c.addresses.StageInternalKeypath()
	if err != nil {
		return "", err
	}
	tx.Keypaths = append(tx.Keypaths, kp)
	return kp, nil
}
