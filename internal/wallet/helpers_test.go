package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"

	"github.com/Klingon-tech/shieldwallet/internal/ledger"
	"github.com/Klingon-tech/shieldwallet/internal/signer"
	"github.com/Klingon-tech/shieldwallet/internal/storage"
	"github.com/Klingon-tech/shieldwallet/pkg/types"
)

const testCoinType = CoinTypeTestnet

var errInjected = errors.New("injected failure")

// fakeLedger is an in-memory shielded pool.
type fakeLedger struct {
	mu         sync.Mutex
	entries    []ledger.ShardEntry
	voids      []types.VoidNumber
	err        error
	shardCalls atomic.Int32
}

func (l *fakeLedger) VoidNumbers(ctx context.Context) ([]types.VoidNumber, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	return append([]types.VoidNumber(nil), l.voids...), nil
}

func (l *fakeLedger) LedgerShards(ctx context.Context, shard *uint8) ([]ledger.ShardEntry, error) {
	l.shardCalls.Add(1)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	var out []ledger.ShardEntry
	for _, e := range l.entries {
		if shard == nil || *shard == e.ShardIndex {
			out = append(out, e)
		}
	}
	return out, nil
}

// post appends a note to the ledger as an on-chain entry.
func (l *fakeLedger) post(utxo types.UTXO, shard uint8) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var note types.Ciphertext
	copy(note.EncryptedMsg[:], utxo[:])
	l.entries = append(l.entries, ledger.ShardEntry{ShardIndex: shard, UTXO: utxo, EncryptedNote: note})
}

func (l *fakeLedger) spend(v types.VoidNumber) {
	l.mu.Lock()
	l.voids = append(l.voids, v)
	l.mu.Unlock()
}

// fakeSigner derives notes deterministically from (keypath, asset, value)
// and decrypts only the notes it generated.
type fakeSigner struct {
	mu    sync.Mutex
	owned map[types.UTXO]signer.Asset

	recoverCalls atomic.Int32
	lastRecover  signer.RecoverAccountParams
	lastTransfer signer.GeneratePrivateTransferBatchParams
	lastReclaim  signer.GenerateReclaimBatchParams
	failGenerate error
	failTransfer error
	failRecover  error
	derivedPaths []string

	// recoverGate, when set, holds RecoverAccount until it is closed.
	recoverGate chan struct{}
}

func newFakeSigner() *fakeSigner {
	return &fakeSigner{owned: make(map[types.UTXO]signer.Asset)}
}

func (s *fakeSigner) asset(p signer.GenerateAssetParams) signer.Asset {
	sum := blake3.Sum256([]byte(fmt.Sprintf("%s|%d|%d", p.Keypath, p.AssetID, p.Value)))
	void := blake3.Sum256(append([]byte("void|"), sum[:]...))
	a := signer.Asset{
		Keypath:    p.Keypath,
		AssetID:    p.AssetID,
		Value:      p.Value,
		UTXO:       sum,
		ShardIndex: sum[0] % 4,
		VoidNumber: void,
	}
	s.mu.Lock()
	s.owned[a.UTXO] = a
	s.mu.Unlock()
	return a
}

func (s *fakeSigner) RecoverAccount(ctx context.Context, p signer.RecoverAccountParams) (signer.RecoveredAccount, error) {
	s.recoverCalls.Add(1)
	if s.recoverGate != nil {
		<-s.recoverGate
	}
	if s.failRecover != nil {
		return signer.RecoveredAccount{}, s.failRecover
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRecover = p
	var out signer.RecoveredAccount
	for _, u := range p.UTXOs {
		if a, ok := s.owned[u]; ok {
			out.Assets = append(out.Assets, a)
		}
	}
	return out, nil
}

func (s *fakeSigner) DeriveShieldedAddress(ctx context.Context, keypath string) (types.ShieldedAddress, error) {
	s.mu.Lock()
	s.derivedPaths = append(s.derivedPaths, keypath)
	s.mu.Unlock()
	k := blake3.Sum256([]byte(keypath))
	return types.ShieldedAddress{K: k, S: types.RandomValue{1}, ECPK: types.RandomValue{2}}, nil
}

func (s *fakeSigner) GenerateAsset(ctx context.Context, p signer.GenerateAssetParams) (signer.Asset, error) {
	if s.failGenerate != nil {
		return signer.Asset{}, s.failGenerate
	}
	return s.asset(p), nil
}

func (s *fakeSigner) GenerateMintData(ctx context.Context, p signer.GenerateAssetParams) (signer.MintData, error) {
	if s.failGenerate != nil {
		return signer.MintData{}, s.failGenerate
	}
	a := s.asset(p)
	return signer.MintData{AssetID: p.AssetID, Value: p.Value, Commitment: a.UTXO}, nil
}

func (s *fakeSigner) GeneratePrivateTransferData(ctx context.Context, p signer.GeneratePrivateTransferBatchParams) (signer.PrivateTransferBatch, error) {
	if s.failTransfer != nil {
		return signer.PrivateTransferBatch{}, s.failTransfer
	}
	s.mu.Lock()
	s.lastTransfer = p
	s.mu.Unlock()
	return signer.PrivateTransferBatch{Transfers: make([]signer.PrivateTransferData, len(p.Transfers))}, nil
}

func (s *fakeSigner) GenerateReclaimData(ctx context.Context, p signer.GenerateReclaimBatchParams) (signer.ReclaimBatch, error) {
	if s.failTransfer != nil {
		return signer.ReclaimBatch{}, s.failTransfer
	}
	s.mu.Lock()
	s.lastReclaim = p
	s.mu.Unlock()
	return signer.ReclaimBatch{
		Transfers: make([]signer.PrivateTransferData, len(p.Transfers)),
		Reclaim:   signer.ReclaimData{AssetID: p.Reclaim.AssetID, ReclaimValue: p.Reclaim.ReclaimValue},
	}, nil
}

// fundNote creates a note owned by the fake signer and posts it on chain.
func fundNote(s *fakeSigner, l *fakeLedger, kind types.AssetID, value types.Balance, index int) Note {
	kp := fmt.Sprintf("%s/%d/%d", BasePrefix(testCoinType), ChainExternal, index)
	a := s.asset(signer.GenerateAssetParams{AssetID: kind, Value: value, Keypath: kp})
	l.post(a.UTXO, a.ShardIndex)
	return NoteFromAsset(a)
}

type testEnv struct {
	db     *storage.MemoryDB
	signer *fakeSigner
	ledger *fakeLedger
	core   *Core
}

func newTestEnv(strict bool) *testEnv {
	db := storage.NewMemory()
	s := newFakeSigner()
	l := &fakeLedger{}
	return &testEnv{
		db:     db,
		signer: s,
		ledger: l,
		core:   New(db, s, l, Options{Name: "test", CoinType: testCoinType, StrictStaging: strict}),
	}
}

// testNote returns a confirmed note with a distinct UTXO.
func testNote(id byte, kind types.AssetID, value types.Balance) Note {
	return Note{AssetID: kind, Value: value, Keypath: "m/44'/612'/0'/0/0", UTXO: types.UTXO{id}, VoidNumber: types.VoidNumber{id, 0xff}}
}

func nopLogger() zerolog.Logger {
	return zerolog.Nop()
}
