// Package signer talks to the external signer service that holds the wallet's
// keys and generates zero-knowledge proofs.
//
// Every request and response body is one of the typed records in this file,
// encoded with pkg/codec. Proof blobs and commitments are carried opaquely.
package signer

import (
	"fmt"

	"github.com/Klingon-tech/shieldwallet/pkg/codec"
	"github.com/Klingon-tech/shieldwallet/pkg/types"
)

// Minimum encoded sizes used to bound decoded vector lengths.
const (
	ciphertextSize   = types.EncryptedMsgSize + types.EphemeralPKSize
	senderDataSize   = 2*types.RandomValueSize + 1
	receiverDataSize = types.RandomValueSize + ciphertextSize
	transferDataSize = 2*senderDataSize + 2*receiverDataSize + types.ProofSize
	assetMinSize     = 1 + 4 + 16 + types.RandomValueSize + 1 + types.RandomValueSize
)

// DeriveShieldedAddressParams asks the signer for the address at a keypath.
type DeriveShieldedAddressParams struct {
	Keypath string
}

// Encode returns the wire form.
func (p DeriveShieldedAddressParams) Encode() []byte {
	e := codec.NewEncoder(len(p.Keypath) + 4)
	e.String(p.Keypath)
	return e.Bytes()
}

// DecodeDeriveShieldedAddressParams parses the wire form.
func DecodeDeriveShieldedAddressParams(data []byte) (DeriveShieldedAddressParams, error) {
	d := codec.NewDecoder(data)
	p := DeriveShieldedAddressParams{Keypath: d.String()}
	return p, wrap("DeriveShieldedAddressParams", d.Finish())
}

// GenerateAssetParams asks the signer to generate a note of the given kind
// and value owned by the keypath. The same record drives mint requests.
type GenerateAssetParams struct {
	AssetID types.AssetID
	Value   types.Balance
	Keypath string
}

// Encode returns the wire form.
func (p GenerateAssetParams) Encode() []byte {
	e := codec.NewEncoder(24 + len(p.Keypath))
	e.U32(uint32(p.AssetID))
	e.U128(uint64(p.Value))
	e.String(p.Keypath)
	return e.Bytes()
}

// DecodeGenerateAssetParams parses the wire form.
func DecodeGenerateAssetParams(data []byte) (GenerateAssetParams, error) {
	d := codec.NewDecoder(data)
	var p GenerateAssetParams
	p.AssetID = types.AssetID(d.U32())
	p.Value = types.Balance(d.U128())
	p.Keypath = d.String()
	return p, wrap("GenerateAssetParams", d.Finish())
}

// Asset is a note as the signer reports it: owned by Keypath and already
// placed in a ledger shard.
type Asset struct {
	Keypath    string
	AssetID    types.AssetID
	Value      types.Balance
	UTXO       types.UTXO
	ShardIndex uint8
	VoidNumber types.VoidNumber
}

func (a Asset) encodeTo(e *codec.Encoder) {
	e.String(a.Keypath)
	e.U32(uint32(a.AssetID))
	e.U128(uint64(a.Value))
	e.Fixed(a.UTXO[:])
	e.U8(a.ShardIndex)
	e.Fixed(a.VoidNumber[:])
}

func decodeAsset(d *codec.Decoder) Asset {
	var a Asset
	a.Keypath = d.String()
	a.AssetID = types.AssetID(d.U32())
	a.Value = types.Balance(d.U128())
	d.Fixed(a.UTXO[:])
	a.ShardIndex = d.U8()
	d.Fixed(a.VoidNumber[:])
	return a
}

// Encode returns the wire form.
func (a Asset) Encode() []byte {
	e := codec.NewEncoder(assetMinSize + len(a.Keypath))
	a.encodeTo(e)
	return e.Bytes()
}

// DecodeAsset parses the wire form.
func DecodeAsset(data []byte) (Asset, error) {
	d := codec.NewDecoder(data)
	a := decodeAsset(d)
	return a, wrap("Asset", d.Finish())
}

// RecoverAccountParams carries the on-chain notes the signer should try to
// decrypt, plus every known void number so it can skip spent notes.
type RecoverAccountParams struct {
	VoidNumbers    []types.VoidNumber
	UTXOs          []types.UTXO
	EncryptedNotes []types.Ciphertext
}

// Encode returns the wire form.
func (p RecoverAccountParams) Encode() []byte {
	n := 12 + types.RandomValueSize*(len(p.VoidNumbers)+len(p.UTXOs)) + ciphertextSize*len(p.EncryptedNotes)
	e := codec.NewEncoder(n)
	encodeValues(e, p.VoidNumbers)
	encodeValues(e, p.UTXOs)
	e.Compact(uint64(len(p.EncryptedNotes)))
	for _, c := range p.EncryptedNotes {
		encodeCiphertext(e, c)
	}
	return e.Bytes()
}

// DecodeRecoverAccountParams parses the wire form.
func DecodeRecoverAccountParams(data []byte) (RecoverAccountParams, error) {
	d := codec.NewDecoder(data)
	var p RecoverAccountParams
	p.VoidNumbers = decodeValues(d)
	p.UTXOs = decodeValues(d)
	n := d.Len(ciphertextSize)
	p.EncryptedNotes = make([]types.Ciphertext, 0, codec.Prealloc(n))
	for i := 0; i < n && d.Err() == nil; i++ {
		p.EncryptedNotes = append(p.EncryptedNotes, decodeCiphertext(d))
	}
	return p, wrap("RecoverAccountParams", d.Finish())
}

// RecoveredAccount lists the notes the signer could decrypt.
type RecoveredAccount struct {
	Assets []Asset
}

// Encode returns the wire form.
func (r RecoveredAccount) Encode() []byte {
	e := codec.NewEncoder(4 + len(r.Assets)*(assetMinSize+24))
	e.Compact(uint64(len(r.Assets)))
	for _, a := range r.Assets {
		a.encodeTo(e)
	}
	return e.Bytes()
}

// DecodeRecoveredAccount parses the wire form.
func DecodeRecoveredAccount(data []byte) (RecoveredAccount, error) {
	d := codec.NewDecoder(data)
	n := d.Len(assetMinSize)
	r := RecoveredAccount{Assets: make([]Asset, 0, codec.Prealloc(n))}
	for i := 0; i < n && d.Err() == nil; i++ {
		r.Assets = append(r.Assets, decodeAsset(d))
	}
	return r, wrap("RecoveredAccount", d.Finish())
}

// TransferInput is one of the two notes consumed by a transfer step.
// Shard holds every UTXO of the ledger shard the note lives in.
type TransferInput struct {
	Value   types.Balance
	Keypath string
	Shard   []types.UTXO
}

// GeneratePrivateTransferParams describes one two-input, two-output transfer.
// A nil NonChangeKeypath sends the non-change output to the batch receiver.
type GeneratePrivateTransferParams struct {
	Inputs           [2]TransferInput
	ChangeKeypath    string
	NonChangeKeypath *string
	NonChangeValue   types.Balance
	ChangeValue      types.Balance
}

func (p GeneratePrivateTransferParams) encodeTo(e *codec.Encoder) {
	e.U128(uint64(p.Inputs[0].Value))
	e.U128(uint64(p.Inputs[1].Value))
	e.String(p.Inputs[0].Keypath)
	e.String(p.Inputs[1].Keypath)
	encodeValues(e, p.Inputs[0].Shard)
	encodeValues(e, p.Inputs[1].Shard)
	e.String(p.ChangeKeypath)
	if p.NonChangeKeypath == nil {
		e.Bool(false)
	} else {
		e.Bool(true)
		e.String(*p.NonChangeKeypath)
	}
	e.U128(uint64(p.NonChangeValue))
	e.U128(uint64(p.ChangeValue))
}

func decodePrivateTransferParams(d *codec.Decoder) GeneratePrivateTransferParams {
	var p GeneratePrivateTransferParams
	p.Inputs[0].Value = types.Balance(d.U128())
	p.Inputs[1].Value = types.Balance(d.U128())
	p.Inputs[0].Keypath = d.String()
	p.Inputs[1].Keypath = d.String()
	p.Inputs[0].Shard = decodeValues(d)
	p.Inputs[1].Shard = decodeValues(d)
	p.ChangeKeypath = d.String()
	if d.Bool() {
		kp := d.String()
		p.NonChangeKeypath = &kp
	}
	p.NonChangeValue = types.Balance(d.U128())
	p.ChangeValue = types.Balance(d.U128())
	return p
}

// Encode returns the wire form.
func (p GeneratePrivateTransferParams) Encode() []byte {
	e := codec.NewEncoder(128)
	p.encodeTo(e)
	return e.Bytes()
}

// DecodeGeneratePrivateTransferParams parses the wire form.
func DecodeGeneratePrivateTransferParams(data []byte) (GeneratePrivateTransferParams, error) {
	d := codec.NewDecoder(data)
	p := decodePrivateTransferParams(d)
	return p, wrap("GeneratePrivateTransferParams", d.Finish())
}

// GeneratePrivateTransferBatchParams chains transfer steps that together pay
// Receiver. Every step spends notes of AssetID.
type GeneratePrivateTransferBatchParams struct {
	AssetID   types.AssetID
	Receiver  types.ShieldedAddress
	Transfers []GeneratePrivateTransferParams
}

// Encode returns the wire form.
func (p GeneratePrivateTransferBatchParams) Encode() []byte {
	e := codec.NewEncoder(4 + types.ShieldedAddressSize + 128*len(p.Transfers))
	e.U32(uint32(p.AssetID))
	e.Fixed(p.Receiver.Bytes())
	encodeTransferParamsList(e, p.Transfers)
	return e.Bytes()
}

// DecodeGeneratePrivateTransferBatchParams parses the wire form.
func DecodeGeneratePrivateTransferBatchParams(data []byte) (GeneratePrivateTransferBatchParams, error) {
	d := codec.NewDecoder(data)
	var p GeneratePrivateTransferBatchParams
	p.AssetID = types.AssetID(d.U32())
	d.Fixed(p.Receiver.K[:])
	d.Fixed(p.Receiver.S[:])
	d.Fixed(p.Receiver.ECPK[:])
	p.Transfers = decodeTransferParamsList(d)
	return p, wrap("GeneratePrivateTransferBatchParams", d.Finish())
}

// GenerateReclaimParams describes the final step of a reclaim: two inputs
// in, ReclaimValue out to the public balance, the rest to ChangeKeypath.
type GenerateReclaimParams struct {
	AssetID       types.AssetID
	Inputs        [2]TransferInput
	ChangeKeypath string
	ReclaimValue  types.Balance
}

func (p GenerateReclaimParams) encodeTo(e *codec.Encoder) {
	e.U32(uint32(p.AssetID))
	e.U128(uint64(p.Inputs[0].Value))
	e.U128(uint64(p.Inputs[1].Value))
	e.String(p.Inputs[0].Keypath)
	e.String(p.Inputs[1].Keypath)
	encodeValues(e, p.Inputs[0].Shard)
	encodeValues(e, p.Inputs[1].Shard)
	e.String(p.ChangeKeypath)
	e.U128(uint64(p.ReclaimValue))
}

func decodeReclaimParams(d *codec.Decoder) GenerateReclaimParams {
	var p GenerateReclaimParams
	p.AssetID = types.AssetID(d.U32())
	p.Inputs[0].Value = types.Balance(d.U128())
	p.Inputs[1].Value = types.Balance(d.U128())
	p.Inputs[0].Keypath = d.String()
	p.Inputs[1].Keypath = d.String()
	p.Inputs[0].Shard = decodeValues(d)
	p.Inputs[1].Shard = decodeValues(d)
	p.ChangeKeypath = d.String()
	p.ReclaimValue = types.Balance(d.U128())
	return p
}

// Encode returns the wire form.
func (p GenerateReclaimParams) Encode() []byte {
	e := codec.NewEncoder(128)
	p.encodeTo(e)
	return e.Bytes()
}

// DecodeGenerateReclaimParams parses the wire form.
func DecodeGenerateReclaimParams(data []byte) (GenerateReclaimParams, error) {
	d := codec.NewDecoder(data)
	p := decodeReclaimParams(d)
	return p, wrap("GenerateReclaimParams", d.Finish())
}

// GenerateReclaimBatchParams accumulates inputs with private transfers and
// then reclaims from the accumulated note.
type GenerateReclaimBatchParams struct {
	Transfers []GeneratePrivateTransferParams
	Reclaim   GenerateReclaimParams
}

// Encode returns the wire form.
func (p GenerateReclaimBatchParams) Encode() []byte {
	e := codec.NewEncoder(128 * (len(p.Transfers) + 1))
	encodeTransferParamsList(e, p.Transfers)
	p.Reclaim.encodeTo(e)
	return e.Bytes()
}

// DecodeGenerateReclaimBatchParams parses the wire form.
func DecodeGenerateReclaimBatchParams(data []byte) (GenerateReclaimBatchParams, error) {
	d := codec.NewDecoder(data)
	var p GenerateReclaimBatchParams
	p.Transfers = decodeTransferParamsList(d)
	p.Reclaim = decodeReclaimParams(d)
	return p, wrap("GenerateReclaimBatchParams", d.Finish())
}

// SenderData is the public part of a spent input.
type SenderData struct {
	VoidNumber types.VoidNumber
	Root       types.RandomValue
	ShardIndex uint8
}

// ReceiverData is the public part of a created output.
type ReceiverData struct {
	Commitment    types.RandomValue
	EncryptedNote types.Ciphertext
}

// MintData is the public payload of a mint extrinsic.
type MintData struct {
	AssetID       types.AssetID
	Value         types.Balance
	Commitment    types.RandomValue
	K             types.RandomValue
	S             types.RandomValue
	EncryptedNote types.Ciphertext
}

// Encode returns the wire form.
func (m MintData) Encode() []byte {
	e := codec.NewEncoder(4 + 16 + 3*types.RandomValueSize + ciphertextSize)
	e.U32(uint32(m.AssetID))
	e.U128(uint64(m.Value))
	e.Fixed(m.Commitment[:])
	e.Fixed(m.K[:])
	e.Fixed(m.S[:])
	encodeCiphertext(e, m.EncryptedNote)
	return e.Bytes()
}

// DecodeMintData parses the wire form.
func DecodeMintData(data []byte) (MintData, error) {
	d := codec.NewDecoder(data)
	var m MintData
	m.AssetID = types.AssetID(d.U32())
	m.Value = types.Balance(d.U128())
	d.Fixed(m.Commitment[:])
	d.Fixed(m.K[:])
	d.Fixed(m.S[:])
	m.EncryptedNote = decodeCiphertext(d)
	return m, wrap("MintData", d.Finish())
}

// PrivateTransferData is the public payload of one private transfer.
type PrivateTransferData struct {
	Senders   [2]SenderData
	Receivers [2]ReceiverData
	Proof     types.Proof
}

func (t PrivateTransferData) encodeTo(e *codec.Encoder) {
	for _, s := range t.Senders {
		encodeSender(e, s)
	}
	for _, r := range t.Receivers {
		encodeReceiver(e, r)
	}
	e.Fixed(t.Proof[:])
}

func decodePrivateTransferData(d *codec.Decoder) PrivateTransferData {
	var t PrivateTransferData
	for i := range t.Senders {
		t.Senders[i] = decodeSender(d)
	}
	for i := range t.Receivers {
		t.Receivers[i] = decodeReceiver(d)
	}
	d.Fixed(t.Proof[:])
	return t
}

// Encode returns the wire form submitted to the ledger.
func (t PrivateTransferData) Encode() []byte {
	e := codec.NewEncoder(transferDataSize)
	t.encodeTo(e)
	return e.Bytes()
}

// DecodePrivateTransferData parses the wire form.
func DecodePrivateTransferData(data []byte) (PrivateTransferData, error) {
	d := codec.NewDecoder(data)
	t := decodePrivateTransferData(d)
	return t, wrap("PrivateTransferData", d.Finish())
}

// PrivateTransferBatch is the signer's answer to a transfer batch request.
type PrivateTransferBatch struct {
	Transfers []PrivateTransferData
}

// Encode returns the wire form.
func (b PrivateTransferBatch) Encode() []byte {
	e := codec.NewEncoder(4 + transferDataSize*len(b.Transfers))
	encodeTransferDataList(e, b.Transfers)
	return e.Bytes()
}

// DecodePrivateTransferBatch parses the wire form.
func DecodePrivateTransferBatch(data []byte) (PrivateTransferBatch, error) {
	d := codec.NewDecoder(data)
	b := PrivateTransferBatch{Transfers: decodeTransferDataList(d)}
	return b, wrap("PrivateTransferBatch", d.Finish())
}

// ReclaimData is the public payload of a reclaim extrinsic.
type ReclaimData struct {
	AssetID      types.AssetID
	Senders      [2]SenderData
	Receiver     ReceiverData
	ReclaimValue types.Balance
	Proof        types.Proof
}

func (r ReclaimData) encodeTo(e *codec.Encoder) {
	e.U32(uint32(r.AssetID))
	for _, s := range r.Senders {
		encodeSender(e, s)
	}
	encodeReceiver(e, r.Receiver)
	e.U128(uint64(r.ReclaimValue))
	e.Fixed(r.Proof[:])
}

func decodeReclaimData(d *codec.Decoder) ReclaimData {
	var r ReclaimData
	r.AssetID = types.AssetID(d.U32())
	for i := range r.Senders {
		r.Senders[i] = decodeSender(d)
	}
	r.Receiver = decodeReceiver(d)
	r.ReclaimValue = types.Balance(d.U128())
	d.Fixed(r.Proof[:])
	return r
}

// Encode returns the wire form submitted to the ledger.
func (r ReclaimData) Encode() []byte {
	e := codec.NewEncoder(4 + 2*senderDataSize + receiverDataSize + 16 + types.ProofSize)
	r.encodeTo(e)
	return e.Bytes()
}

// DecodeReclaimData parses the wire form.
func DecodeReclaimData(data []byte) (ReclaimData, error) {
	d := codec.NewDecoder(data)
	r := decodeReclaimData(d)
	return r, wrap("ReclaimData", d.Finish())
}

// ReclaimBatch is the signer's answer to a reclaim batch request.
type ReclaimBatch struct {
	Transfers []PrivateTransferData
	Reclaim   ReclaimData
}

// Encode returns the wire form.
func (b ReclaimBatch) Encode() []byte {
	e := codec.NewEncoder(4 + transferDataSize*(len(b.Transfers)+1))
	encodeTransferDataList(e, b.Transfers)
	b.Reclaim.encodeTo(e)
	return e.Bytes()
}

// DecodeReclaimBatch parses the wire form.
func DecodeReclaimBatch(data []byte) (ReclaimBatch, error) {
	d := codec.NewDecoder(data)
	var b ReclaimBatch
	b.Transfers = decodeTransferDataList(d)
	b.Reclaim = decodeReclaimData(d)
	return b, wrap("ReclaimBatch", d.Finish())
}

// DecodeShieldedAddress parses the 96-byte address returned by
// deriveShieldedAddress.
func DecodeShieldedAddress(data []byte) (types.ShieldedAddress, error) {
	d := codec.NewDecoder(data)
	var a types.ShieldedAddress
	d.Fixed(a.K[:])
	d.Fixed(a.S[:])
	d.Fixed(a.ECPK[:])
	return a, wrap("ShieldedAddress", d.Finish())
}

func wrap(record string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("decode %s: %w", record, err)
}

func encodeValues(e *codec.Encoder, vs []types.RandomValue) {
	e.Compact(uint64(len(vs)))
	for _, v := range vs {
		e.Fixed(v[:])
	}
}

func decodeValues(d *codec.Decoder) []types.RandomValue {
	n := d.Len(types.RandomValueSize)
	out := make([]types.RandomValue, n)
	for i := range out {
		d.Fixed(out[i][:])
	}
	return out
}

func encodeCiphertext(e *codec.Encoder, c types.Ciphertext) {
	e.Fixed(c.EncryptedMsg[:])
	e.Fixed(c.EphemeralPK[:])
}

func decodeCiphertext(d *codec.Decoder) types.Ciphertext {
	var c types.Ciphertext
	d.Fixed(c.EncryptedMsg[:])
	d.Fixed(c.EphemeralPK[:])
	return c
}

func encodeSender(e *codec.Encoder, s SenderData) {
	e.Fixed(s.VoidNumber[:])
	e.Fixed(s.Root[:])
	e.U8(s.ShardIndex)
}

func decodeSender(d *codec.Decoder) SenderData {
	var s SenderData
	d.Fixed(s.VoidNumber[:])
	d.Fixed(s.Root[:])
	s.ShardIndex = d.U8()
	return s
}

func encodeReceiver(e *codec.Encoder, r ReceiverData) {
	e.Fixed(r.Commitment[:])
	encodeCiphertext(e, r.EncryptedNote)
}

func decodeReceiver(d *codec.Decoder) ReceiverData {
	var r ReceiverData
	d.Fixed(r.Commitment[:])
	r.EncryptedNote = decodeCiphertext(d)
	return r
}

func encodeTransferParamsList(e *codec.Encoder, list []GeneratePrivateTransferParams) {
	e.Compact(uint64(len(list)))
	for _, p := range list {
		p.encodeTo(e)
	}
}

func decodeTransferParamsList(d *codec.Decoder) []GeneratePrivateTransferParams {
	// Four u128 values, five length prefixes and an option tag.
	n := d.Len(16*4 + 6)
	out := make([]GeneratePrivateTransferParams, 0, codec.Prealloc(n))
	for i := 0; i < n && d.Err() == nil; i++ {
		out = append(out, decodePrivateTransferParams(d))
	}
	return out
}

func encodeTransferDataList(e *codec.Encoder, list []PrivateTransferData) {
	e.Compact(uint64(len(list)))
	for _, t := range list {
		t.encodeTo(e)
	}
}

func decodeTransferDataList(d *codec.Decoder) []PrivateTransferData {
	n := d.Len(transferDataSize)
	out := make([]PrivateTransferData, 0, codec.Prealloc(n))
	for i := 0; i < n && d.Err() == nil; i++ {
		out = append(out, decodePrivateTransferData(d))
	}
	return out
}
