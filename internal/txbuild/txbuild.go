// Package txbuild assembles spending transactions and computes the legacy
// signature digests committed to by their signatures.
package txbuild

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// Package errors.
var (
	ErrInvalidInputIndex = errors.New("input index out of range")
	ErrNoInputs          = errors.New("no inputs provided")
)

// Sequence values used by the spend paths. A non-final sequence keeps the
// transaction's lock-time field meaningful to consensus.
const (
	// SeqNonFinal is the default payment-path sequence.
	SeqNonFinal = wire.MaxTxInSequenceNum - 1

	// SeqLockTime is the sequence used on lock-time gated paths (hodl
	// spends and channel refunds).
	SeqLockTime uint32 = 0
)

// FloorFeeRatePerKB is substituted when the fee estimator reports an unknown
// (non-positive) rate, preferring availability over precision.
const FloorFeeRatePerKB = 10000 // satoshis per KB

// Input describes one transaction input to assemble.
type Input struct {
	Outpoint wire.OutPoint
	Sequence uint32
}

// Output describes one transaction output to assemble.
type Output struct {
	Value    int64
	PkScript []byte
}

// BuildSpend assembles an unsigned transaction from inputs, outputs and a
// lock-time. Pure construction; signing happens against the result.
func BuildSpend(inputs []Input, outputs []Output, lockTime uint32) (*wire.MsgTx, error) {
	if len(inputs) == 0 {
		return nil, ErrNoInputs
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	for _, in := range inputs {
		txIn := wire.NewTxIn(&in.Outpoint, nil, nil)
		txIn.Sequence = in.Sequence
		tx.AddTxIn(txIn)
	}
	for _, out := range outputs {
		tx.AddTxOut(wire.NewTxOut(out.Value, out.PkScript))
	}
	tx.LockTime = lockTime
	return tx, nil
}

// ComputeDigest computes the legacy signature digest for the given input of
// tx, committing according to hashType. prevScript is the redeem script (or
// raw locking script) of the output being spent.
func ComputeDigest(prevScript []byte, tx *wire.MsgTx, inputIndex int, hashType txscript.SigHashType) ([]byte, error) {
	if inputIndex < 0 || inputIndex >= len(tx.TxIn) {
		return nil, fmt.Errorf("%w: %d of %d inputs", ErrInvalidInputIndex, inputIndex, len(tx.TxIn))
	}
	digest, err := txscript.CalcSignatureHash(prevScript, hashType, tx, inputIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to compute sighash: %w", err)
	}
	return digest, nil
}

// EstimateFee estimates the absolute fee for a spend with numInputs inputs
// and a single destination output.
//
// Size model: version (4) + counts (2) + 153 bytes per signed input +
// output count (1) + one output (34) + lock-time (4). The per-input figure
// is a fixed estimate covering outpoint, sequence and a signature+script
// unlock; signatures vary by a byte or two, which this deliberately ignores.
func EstimateFee(numInputs int, feeRatePerKB int64) int64 {
	if feeRatePerKB <= 0 {
		feeRatePerKB = FloorFeeRatePerKB
	}
	size := int64(4 + 2 + numInputs*153 + 1 + 34 + 4)
	return size * feeRatePerKB / 1000
}

// Serialize encodes a transaction to hex. The encoding round-trips
// byte-exact through Deserialize; signature digests depend on it.
func Serialize(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// Deserialize decodes a transaction from hex.
func Deserialize(hexStr string) (*wire.MsgTx, error) {
	data, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to deserialize: %w", err)
	}
	return tx, nil
}
