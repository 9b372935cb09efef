package txbuild

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

func testOutpoint(b byte) wire.OutPoint {
	var hash chainhash.Hash
	for i := range hash {
		hash[i] = b
	}
	return wire.OutPoint{Hash: hash, Index: 0}
}

func TestBuildSpend(t *testing.T) {
	inputs := []Input{
		{Outpoint: testOutpoint(1), Sequence: SeqLockTime},
		{Outpoint: testOutpoint(2), Sequence: SeqNonFinal},
	}
	outputs := []Output{{Value: 50_000, PkScript: make([]byte, 23)}}

	tx, err := BuildSpend(inputs, outputs, 750_000)
	if err != nil {
		t.Fatalf("BuildSpend() failed: %v", err)
	}

	if len(tx.TxIn) != 2 {
		t.Fatalf("expected 2 inputs, got %d", len(tx.TxIn))
	}
	if len(tx.TxOut) != 1 {
		t.Fatalf("expected 1 output, got %d", len(tx.TxOut))
	}
	if tx.LockTime != 750_000 {
		t.Errorf("lock-time mismatch: got %d, want 750000", tx.LockTime)
	}
	if tx.TxIn[0].Sequence != SeqLockTime {
		t.Errorf("input 0 sequence mismatch: got %d", tx.TxIn[0].Sequence)
	}
	if tx.TxIn[1].Sequence != SeqNonFinal {
		t.Errorf("input 1 sequence mismatch: got %d", tx.TxIn[1].Sequence)
	}
	if tx.TxIn[0].PreviousOutPoint != inputs[0].Outpoint {
		t.Error("input 0 outpoint mismatch")
	}
}

func TestBuildSpendNoInputs(t *testing.T) {
	_, err := BuildSpend(nil, []Output{{Value: 1, PkScript: []byte{0x51}}}, 0)
	if !errors.Is(err, ErrNoInputs) {
		t.Errorf("expected ErrNoInputs, got %v", err)
	}
}

func TestComputeDigest(t *testing.T) {
	tx, err := BuildSpend(
		[]Input{{Outpoint: testOutpoint(1), Sequence: SeqNonFinal}},
		[]Output{{Value: 1000, PkScript: []byte{txscript.OP_TRUE}}},
		0,
	)
	if err != nil {
		t.Fatalf("BuildSpend() failed: %v", err)
	}

	prevScript := []byte{txscript.OP_TRUE}

	digest, err := ComputeDigest(prevScript, tx, 0, txscript.SigHashAll)
	if err != nil {
		t.Fatalf("ComputeDigest() failed: %v", err)
	}
	if len(digest) != 32 {
		t.Errorf("digest should be 32 bytes, got %d", len(digest))
	}

	// Different sighash types commit to different digests.
	digestACP, err := ComputeDigest(prevScript, tx, 0, txscript.SigHashAll|txscript.SigHashAnyOneCanPay)
	if err != nil {
		t.Fatalf("ComputeDigest() failed: %v", err)
	}
	if string(digest) == string(digestACP) {
		t.Error("SIGHASH_ALL and SIGHASH_ALL|ANYONECANPAY digests should differ")
	}

	for _, idx := range []int{-1, 1, 10} {
		if _, err := ComputeDigest(prevScript, tx, idx, txscript.SigHashAll); !errors.Is(err, ErrInvalidInputIndex) {
			t.Errorf("index %d: expected ErrInvalidInputIndex, got %v", idx, err)
		}
	}
}

func TestEstimateFee(t *testing.T) {
	tests := []struct {
		name         string
		numInputs    int
		feeRatePerKB int64
		want         int64
	}{
		{"one input at floor rate", 1, 10_000, 1980},
		{"one input, unknown rate uses floor", 1, 0, 1980},
		{"one input, negative rate uses floor", 1, -5, 1980},
		{"two inputs at floor rate", 2, 10_000, 3510},
		{"one input at 100k rate", 1, 100_000, 19_800},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateFee(tt.numInputs, tt.feeRatePerKB); got != tt.want {
				t.Errorf("EstimateFee(%d, %d) = %d, want %d",
					tt.numInputs, tt.feeRatePerKB, got, tt.want)
			}
		})
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	tx, err := BuildSpend(
		[]Input{{Outpoint: testOutpoint(7), Sequence: SeqNonFinal}},
		[]Output{{Value: 123_456, PkScript: []byte{txscript.OP_TRUE}}},
		999_999,
	)
	if err != nil {
		t.Fatalf("BuildSpend() failed: %v", err)
	}
	tx.TxIn[0].SignatureScript = []byte{0x01, 0xab}

	hexStr, err := Serialize(tx)
	if err != nil {
		t.Fatalf("Serialize() failed: %v", err)
	}

	got, err := Deserialize(hexStr)
	if err != nil {
		t.Fatalf("Deserialize() failed: %v", err)
	}

	if got.TxHash() != tx.TxHash() {
		t.Error("round-tripped transaction hash mismatch")
	}

	if _, err := Deserialize("zz"); err == nil {
		t.Error("expected error for invalid hex")
	}
	if _, err := Deserialize("abcd"); err == nil {
		t.Error("expected error for truncated transaction")
	}
}
