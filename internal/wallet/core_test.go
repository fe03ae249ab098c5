package wallet

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/Klingon-tech/shieldwallet/internal/signer"
	"github.com/Klingon-tech/shieldwallet/pkg/types"
)

var testReceiver = types.ShieldedAddress{K: types.RandomValue{9}, S: types.RandomValue{8}, ECPK: types.RandomValue{7}}

func staged(t *testing.T, c *Core) int {
	t.Helper()
	n, err := c.Addresses().Staged()
	if err != nil {
		t.Fatalf("Staged() error: %v", err)
	}
	return n
}

func containsUTXO(shard []types.UTXO, u types.UTXO) bool {
	for _, s := range shard {
		if s == u {
			return true
		}
	}
	return false
}

func TestCore_MintConfirm(t *testing.T) {
	env := newTestEnv(true)
	ctx := context.Background()

	tx, err := env.core.Mint(ctx, kindA, 50)
	if err != nil {
		t.Fatalf("Mint() error: %v", err)
	}
	if tx.Kind != TxMint || tx.Value != 50 || tx.AssetID != kindA {
		t.Errorf("tx = %+v", tx)
	}
	if len(tx.Payloads) != 1 || tx.Payloads[0].Call != CallMintPrivateAsset {
		t.Fatalf("payloads = %+v", tx.Payloads)
	}
	mint, err := signer.DecodeMintData(tx.Payloads[0].Data)
	if err != nil {
		t.Fatalf("decode mint payload: %v", err)
	}
	if mint.Value != 50 || mint.AssetID != kindA {
		t.Errorf("mint payload = %+v", mint)
	}
	if len(tx.Outputs) != 1 || tx.Outputs[0].Value != 50 || tx.Outputs[0].Keypath != internalPath(0) {
		t.Errorf("outputs = %v", tx.Outputs)
	}
	if env.core.Pending() != tx {
		t.Error("Pending() does not return the built transaction")
	}
	if staged(t, env.core) != 1 {
		t.Errorf("staged = %d, want 1", staged(t, env.core))
	}

	if err := env.core.Confirm(tx); err != nil {
		t.Fatalf("Confirm() error: %v", err)
	}
	if env.core.Pending() != nil {
		t.Error("Pending() not cleared by Confirm")
	}
	book, _ := env.core.Addresses().Book()
	if len(book.Internal) != 1 || book.UncommittedOffset != 0 {
		t.Errorf("book = %+v, want one committed internal address", book)
	}
	notes, _ := env.core.Assets().LoadNotes()
	if len(notes) != 1 || !notes[0].Equal(tx.Outputs[0]) {
		t.Errorf("stored notes = %v", notes)
	}
}

func TestCore_MintAbort(t *testing.T) {
	env := newTestEnv(true)
	tx, err := env.core.Mint(context.Background(), kindA, 50)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.core.Abort(tx); err != nil {
		t.Fatalf("Abort() error: %v", err)
	}
	book, _ := env.core.Addresses().Book()
	if len(book.Internal) != 0 || book.UncommittedOffset != 0 {
		t.Errorf("book = %+v, want empty", book)
	}
	if notes, _ := env.core.Assets().LoadNotes(); len(notes) != 0 {
		t.Errorf("aborted mint stored %v", notes)
	}
	if err := env.core.Confirm(tx); !errors.Is(err, ErrUnknownTx) {
		t.Errorf("Confirm() after Abort: expected ErrUnknownTx, got %v", err)
	}
	if err := env.core.Abort(tx); !errors.Is(err, ErrUnknownTx) {
		t.Errorf("second Abort(): expected ErrUnknownTx, got %v", err)
	}

	// The released path is reused.
	tx2, err := env.core.Mint(context.Background(), kindA, 1)
	if err != nil {
		t.Fatal(err)
	}
	if tx2.Keypaths[0] != internalPath(0) {
		t.Errorf("second mint staged %s, want %s", tx2.Keypaths[0], internalPath(0))
	}
}

func TestCore_OnePendingAtATime(t *testing.T) {
	env := newTestEnv(true)
	ctx := context.Background()
	tx, err := env.core.Mint(ctx, kindA, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.core.Mint(ctx, kindA, 2); !errors.Is(err, ErrStaleStagingWindow) {
		t.Errorf("second Mint(): expected ErrStaleStagingWindow, got %v", err)
	}
	if _, err := env.core.Reclaim(ctx, kindA, 1); !errors.Is(err, ErrStaleStagingWindow) {
		t.Errorf("Reclaim() while pending: expected ErrStaleStagingWindow, got %v", err)
	}
	if err := env.core.Reset(); !errors.Is(err, ErrStaleStagingWindow) {
		t.Errorf("Reset() while pending: expected ErrStaleStagingWindow, got %v", err)
	}
	if staged(t, env.core) != 1 {
		t.Error("rejected builds must not touch the staging window")
	}
	if err := env.core.Confirm(tx); err != nil {
		t.Fatal(err)
	}
	if _, err := env.core.Mint(ctx, kindA, 2); err != nil {
		t.Errorf("Mint() after Confirm: %v", err)
	}
}

func TestCore_ReleasesInterruptedStaging(t *testing.T) {
	env := newTestEnv(true)
	// A previous session staged a path and exited without a decision.
	if _, err := env.core.Addresses().StageInternalKeypath(); err != nil {
		t.Fatal(err)
	}
	tx, err := env.core.Mint(context.Background(), kindA, 1)
	if err != nil {
		t.Fatalf("Mint() error: %v", err)
	}
	if tx.Keypaths[0] != internalPath(0) {
		t.Errorf("staged %s, want %s", tx.Keypaths[0], internalPath(0))
	}
	if staged(t, env.core) != 1 {
		t.Errorf("staged = %d, want 1", staged(t, env.core))
	}
}

func TestCore_PrivateTransferTwoNotes(t *testing.T) {
	env := newTestEnv(true)
	ctx := context.Background()
	a := fundNote(env.signer, env.ledger, kindA, 10, 0)
	b := fundNote(env.signer, env.ledger, kindA, 5, 1)
	fundNote(env.signer, env.ledger, kindA, 3, 2)

	tx, err := env.core.PrivateTransfer(ctx, kindA, 12, testReceiver)
	if err != nil {
		t.Fatalf("PrivateTransfer() error: %v", err)
	}
	if tx.Selection == nil || len(tx.Selection.Notes) != 2 || tx.Selection.Change != 3 {
		t.Fatalf("selection = %+v", tx.Selection)
	}

	req := env.signer.lastTransfer
	if req.AssetID != kindA || req.Receiver != testReceiver {
		t.Errorf("batch header = %d %v", req.AssetID, req.Receiver)
	}
	if len(req.Transfers) != 1 {
		t.Fatalf("signer got %d steps, want 1", len(req.Transfers))
	}
	step := req.Transfers[0]
	if step.NonChangeKeypath != nil {
		t.Errorf("final step pays the receiver, got non-change keypath %s", *step.NonChangeKeypath)
	}
	if step.NonChangeValue != 12 || step.ChangeValue != 3 {
		t.Errorf("values = %d/%d, want 12/3", step.NonChangeValue, step.ChangeValue)
	}
	if step.ChangeKeypath != internalPath(0) {
		t.Errorf("change keypath = %s", step.ChangeKeypath)
	}
	if step.Inputs[0].Keypath != a.Keypath || step.Inputs[1].Keypath != b.Keypath {
		t.Errorf("inputs = %s, %s", step.Inputs[0].Keypath, step.Inputs[1].Keypath)
	}
	if !containsUTXO(step.Inputs[0].Shard, a.UTXO) || !containsUTXO(step.Inputs[1].Shard, b.UTXO) {
		t.Error("each input must carry the shard holding it")
	}

	if len(tx.Payloads) != 1 || tx.Payloads[0].Call != CallPrivateTransfer {
		t.Errorf("payloads = %+v", tx.Payloads)
	}
	if len(tx.Outputs) != 1 || tx.Outputs[0].Value != 3 || tx.Outputs[0].Keypath != internalPath(0) {
		t.Errorf("outputs = %v", tx.Outputs)
	}
	if staged(t, env.core) != 1 {
		t.Errorf("staged = %d, want 1", staged(t, env.core))
	}
}

func TestCore_PrivateTransferThreeNotes(t *testing.T) {
	env := newTestEnv(true)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		fundNote(env.signer, env.ledger, kindA, 5, i)
	}

	tx, err := env.core.PrivateTransfer(ctx, kindA, 12, testReceiver)
	if err != nil {
		t.Fatalf("PrivateTransfer() error: %v", err)
	}
	steps := env.signer.lastTransfer.Transfers
	if len(steps) != 2 {
		t.Fatalf("signer got %d steps, want 2", len(steps))
	}

	merge := steps[0]
	if merge.ChangeKeypath != internalPath(0) || merge.NonChangeKeypath == nil || *merge.NonChangeKeypath != internalPath(1) {
		t.Errorf("merge keypaths = %s / %v", merge.ChangeKeypath, merge.NonChangeKeypath)
	}
	if merge.ChangeValue != 10 || merge.NonChangeValue != 0 {
		t.Errorf("merge values = %d/%d, want 10/0", merge.ChangeValue, merge.NonChangeValue)
	}

	final := steps[1]
	if final.Inputs[0].Keypath != internalPath(0) || final.Inputs[0].Value != 10 {
		t.Errorf("final step spends %s/%d, want the merged note", final.Inputs[0].Keypath, final.Inputs[0].Value)
	}
	merged := env.signer.asset(signer.GenerateAssetParams{AssetID: kindA, Value: 10, Keypath: internalPath(0)})
	if !containsUTXO(final.Inputs[0].Shard, merged.UTXO) {
		t.Error("merged note missing from its shard in the final step")
	}
	if final.ChangeKeypath != internalPath(2) || final.NonChangeValue != 12 || final.ChangeValue != 3 {
		t.Errorf("final step = %s %d/%d", final.ChangeKeypath, final.NonChangeValue, final.ChangeValue)
	}

	if len(tx.Payloads) != 2 {
		t.Errorf("payloads = %d, want 2", len(tx.Payloads))
	}
	if len(tx.Outputs) != 2 || tx.Outputs[0].Value != 0 || tx.Outputs[1].Value != 3 {
		t.Errorf("outputs = %v, want zero note then change", tx.Outputs)
	}
	if staged(t, env.core) != 3 {
		t.Errorf("staged = %d, want 3", staged(t, env.core))
	}

	if err := env.core.Confirm(tx); err != nil {
		t.Fatal(err)
	}
	book, _ := env.core.Addresses().Book()
	if len(book.Internal) != 3 || book.UncommittedOffset != 0 {
		t.Errorf("book = %+v", book)
	}
	if notes, _ := env.core.Assets().LoadNotes(); len(notes) != 5 {
		t.Errorf("stored %d notes, want 5", len(notes))
	}
}

func TestCore_ReclaimTwoNotes(t *testing.T) {
	env := newTestEnv(true)
	fundNote(env.signer, env.ledger, kindA, 10, 0)
	fundNote(env.signer, env.ledger, kindA, 10, 1)

	tx, err := env.core.Reclaim(context.Background(), kindA, 15)
	if err != nil {
		t.Fatalf("Reclaim() error: %v", err)
	}
	req := env.signer.lastReclaim
	if len(req.Transfers) != 0 {
		t.Errorf("signer got %d merge steps, want 0", len(req.Transfers))
	}
	if req.Reclaim.ReclaimValue != 15 || req.Reclaim.AssetID != kindA || req.Reclaim.ChangeKeypath != internalPath(0) {
		t.Errorf("reclaim = %+v", req.Reclaim)
	}
	if len(tx.Payloads) != 1 || tx.Payloads[0].Call != CallReclaim {
		t.Errorf("payloads = %+v", tx.Payloads)
	}
	if len(tx.Outputs) != 1 || tx.Outputs[0].Value != 5 {
		t.Errorf("outputs = %v", tx.Outputs)
	}
}

func TestCore_ReclaimThreeNotes(t *testing.T) {
	env := newTestEnv(true)
	for i := 0; i < 3; i++ {
		fundNote(env.signer, env.ledger, kindA, 4, i)
	}
	tx, err := env.core.Reclaim(context.Background(), kindA, 10)
	if err != nil {
		t.Fatalf("Reclaim() error: %v", err)
	}
	if len(env.signer.lastReclaim.Transfers) != 1 {
		t.Errorf("merge steps = %d, want 1", len(env.signer.lastReclaim.Transfers))
	}
	if len(tx.Payloads) != 2 || tx.Payloads[0].Call != CallPrivateTransfer || tx.Payloads[1].Call != CallReclaim {
		t.Errorf("payloads = %+v", tx.Payloads)
	}
	if env.signer.lastReclaim.Reclaim.Inputs[0].Value != 8 {
		t.Errorf("reclaim spends %d, want the merged 8", env.signer.lastReclaim.Reclaim.Inputs[0].Value)
	}
}

func TestCore_FillerNotesRequired(t *testing.T) {
	env := newTestEnv(true)
	fundNote(env.signer, env.ledger, kindA, 20, 0)

	_, err := env.core.PrivateTransfer(context.Background(), kindA, 5, testReceiver)
	if !errors.Is(err, ErrFillerNotesRequired) {
		t.Fatalf("expected ErrFillerNotesRequired, got %v", err)
	}
	var fe *FillerNotesError
	if !errors.As(err, &fe) || fe.Required != 1 || fe.AssetID != kindA {
		t.Errorf("error = %#v", err)
	}
	if env.core.Pending() != nil || staged(t, env.core) != 0 {
		t.Error("a rejected transfer must leave no pending state")
	}

	// A zero-value mint supplies the filler note.
	if _, err := env.core.Mint(context.Background(), kindA, 0); err != nil {
		t.Errorf("filler Mint() error: %v", err)
	}
}

func TestCore_InsufficientFunds(t *testing.T) {
	env := newTestEnv(true)
	fundNote(env.signer, env.ledger, kindA, 1, 0)
	fundNote(env.signer, env.ledger, kindA, 1, 1)

	if _, err := env.core.PrivateTransfer(context.Background(), kindA, 3, testReceiver); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if env.core.Pending() != nil {
		t.Error("pending slot not released")
	}
}

func TestCore_SignerFailureRollsBack(t *testing.T) {
	env := newTestEnv(true)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		fundNote(env.signer, env.ledger, kindA, 5, i)
	}
	env.signer.failTransfer = errInjected

	if _, err := env.core.PrivateTransfer(ctx, kindA, 12, testReceiver); !errors.Is(err, errInjected) {
		t.Fatalf("expected signer error, got %v", err)
	}
	if env.core.Pending() != nil {
		t.Error("pending slot not released")
	}
	book, _ := env.core.Addresses().Book()
	if len(book.Internal) != 0 || book.UncommittedOffset != 0 {
		t.Errorf("book = %+v, want staged paths released", book)
	}

	env.signer.failTransfer = nil
	if _, err := env.core.PrivateTransfer(ctx, kindA, 12, testReceiver); err != nil {
		t.Errorf("retry error: %v", err)
	}
}

func TestCore_InvalidRequests(t *testing.T) {
	env := newTestEnv(true)
	ctx := context.Background()
	if _, err := env.core.PrivateTransfer(ctx, kindA, 1, types.ShieldedAddress{}); err == nil {
		t.Error("expected error for empty receiver")
	}
	if _, err := env.core.PrivateTransfer(ctx, kindA, 0, testReceiver); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero transfer: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := env.core.Reclaim(ctx, kindA, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero reclaim: expected ErrInvalidAmount, got %v", err)
	}
	if env.core.Pending() != nil {
		t.Error("invalid requests must not reserve the pending slot")
	}
}

func TestCore_SpendableNotesSkipsSpent(t *testing.T) {
	env := newTestEnv(true)
	ctx := context.Background()
	a := fundNote(env.signer, env.ledger, kindA, 10, 0)
	b := fundNote(env.signer, env.ledger, kindA, 7, 1)
	fundNote(env.signer, env.ledger, 2, 100, 2)
	if _, err := env.core.Recover(ctx); err != nil {
		t.Fatal(err)
	}

	bal, err := env.core.Balance(ctx, kindA)
	if err != nil || bal != 17 {
		t.Fatalf("Balance() = %d, %v; want 17", bal, err)
	}
	env.ledger.spend(a.VoidNumber)
	notes, err := env.core.SpendableNotes(ctx, kindA)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 || !notes[0].Equal(b) {
		t.Errorf("SpendableNotes() = %v, want only the unspent note", notes)
	}
	if bal, _ := env.core.Balance(ctx, 2); bal != 100 {
		t.Errorf("Balance(2) = %d, want 100", bal)
	}
}

func TestCore_NextExternalAddress(t *testing.T) {
	env := newTestEnv(true)
	ctx := context.Background()
	events, cancel := env.core.Subscribe(4)
	defer cancel()

	first, err := env.core.NextExternalAddress(ctx)
	if err != nil {
		t.Fatalf("NextExternalAddress() error: %v", err)
	}
	if first.Keypath != externalPath(0) {
		t.Errorf("keypath = %s", first.Keypath)
	}
	want, _ := env.signer.DeriveShieldedAddress(ctx, externalPath(0))
	if first.Address != want.String() {
		t.Errorf("address = %s, want %s", first.Address, want)
	}
	second, err := env.core.NextExternalAddress(ctx)
	if err != nil || second.Keypath != externalPath(1) {
		t.Errorf("second address = %+v, %v", second, err)
	}

	ev := <-events
	if ev.Kind != EventAddressDerived || ev.Address != first.Address {
		t.Errorf("event = %+v", ev)
	}
	if staged(t, env.core) != 0 {
		t.Error("external addresses must not be staged")
	}
}

func TestCore_Reset(t *testing.T) {
	env := newTestEnv(true)
	ctx := context.Background()
	fundNote(env.signer, env.ledger, kindA, 10, 0)
	if _, err := env.core.Recover(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := env.core.NextExternalAddress(ctx); err != nil {
		t.Fatal(err)
	}

	if err := env.core.Reset(); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}
	if notes, _ := env.core.Assets().LoadNotes(); len(notes) != 0 {
		t.Errorf("notes after reset = %v", notes)
	}
	book, _ := env.core.Addresses().Book()
	if len(book.External) != 0 {
		t.Errorf("external addresses after reset = %v", book.External)
	}

	// Recovery starts over from the whole ledger.
	res, err := env.core.Recover(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Added != 1 {
		t.Errorf("recovery after reset added %d notes, want 1", res.Added)
	}
}

func TestCore_TxStatusEvents(t *testing.T) {
	env := newTestEnv(true)
	events, cancel := env.core.Subscribe(8)
	defer cancel()

	tx, err := env.core.Mint(context.Background(), kindA, 5)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.core.Confirm(tx); err != nil {
		t.Fatal(err)
	}

	for _, want := range []TxStatus{TxProcessing, TxFinalized} {
		ev := <-events
		if ev.Kind != EventTxStatus || ev.Status != want || ev.TxID != tx.ID || ev.TxKind != TxMint {
			t.Errorf("event = %+v, want %s", ev, want)
		}
	}
}

func TestCore_RecoverEvents(t *testing.T) {
	env := newTestEnv(true)
	events, cancel := env.core.Subscribe(8)
	defer cancel()
	env.ledger.err = errInjected

	if _, err := env.core.Recover(context.Background()); err == nil {
		t.Fatal("expected recovery error")
	}
	if ev := <-events; ev.Kind != EventRecoveryStarted {
		t.Errorf("first event = %s", ev.Kind)
	}
	if ev := <-events; ev.Kind != EventRecoveryFailed || !errors.Is(ev.Err, errInjected) {
		t.Errorf("second event = %+v", ev)
	}
}

func TestCore_ConfirmReportsUnstoredOutputs(t *testing.T) {
	env := newTestEnv(true)
	events, cancel := env.core.Subscribe(8)
	defer cancel()

	tx, err := env.core.Mint(context.Background(), kindA, 5)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.db.Put(assetsKey, []byte("{not json")); err != nil {
		t.Fatal(err)
	}

	err = env.core.Confirm(tx)
	if !errors.Is(err, ErrCorruptState) {
		t.Fatalf("Confirm() error = %v, want ErrCorruptState", err)
	}
	if env.core.Pending() != nil {
		t.Error("Pending() not cleared by Confirm")
	}
	book, _ := env.core.Addresses().Book()
	if len(book.Internal) != 1 || book.UncommittedOffset != 0 {
		t.Errorf("book = %+v, want the change address committed", book)
	}
	for _, want := range []TxStatus{TxProcessing, TxFinalized} {
		if ev := <-events; ev.Status != want {
			t.Errorf("event status = %s, want %s", ev.Status, want)
		}
	}
}

func TestCore_BalanceOverflow(t *testing.T) {
	env := newTestEnv(true)
	ctx := context.Background()
	fundNote(env.signer, env.ledger, kindA, math.MaxUint64, 0)
	fundNote(env.signer, env.ledger, kindA, 1, 1)
	if _, err := env.core.Recover(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := env.core.Balance(ctx, kindA); !errors.Is(err, ErrValueOverflow) {
		t.Errorf("Balance() error = %v, want ErrValueOverflow", err)
	}
}
