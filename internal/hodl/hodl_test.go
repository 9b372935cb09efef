package hodl

import (
	"context"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/hodlchan/hodlchan/internal/backend"
	"github.com/hodlchan/hodlchan/internal/chain"
	"github.com/hodlchan/hodlchan/internal/script"
	"github.com/hodlchan/hodlchan/internal/txbuild"
	"github.com/hodlchan/hodlchan/internal/wallet"
)

const testLockTime = 750_000

// fakeSource serves prevouts from a map.
type fakeSource struct {
	outputs map[wire.OutPoint]*backend.PrevOutput
}

func (f *fakeSource) GetTxOut(_ context.Context, outpoint wire.OutPoint) (*backend.PrevOutput, error) {
	out, ok := f.outputs[outpoint]
	if !ok {
		return nil, backend.ErrNotFound
	}
	return out, nil
}

func testOutpoint(b byte) wire.OutPoint {
	var hash chainhash.Hash
	for i := range hash {
		hash[i] = b
	}
	return wire.OutPoint{Hash: hash, Index: 0}
}

func newTestSigner(t *testing.T) *wallet.KeySigner {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey() failed: %v", err)
	}
	return wallet.NewKeySigner(priv)
}

func TestCreateAddress(t *testing.T) {
	signer := newTestSigner(t)

	addr, redeem, err := CreateAddress(signer.PubKey(), testLockTime, chain.Testnet)
	if err != nil {
		t.Fatalf("CreateAddress() failed: %v", err)
	}
	if addr.EncodeAddress()[0] != '2' {
		t.Errorf("testnet P2SH address should start with 2, got %s", addr.EncodeAddress())
	}
	if len(redeem) == 0 {
		t.Fatal("redeem script is empty")
	}

	// Same key and lock-time always derive the same address.
	addr2, _, err := CreateAddress(signer.PubKey(), testLockTime, chain.Testnet)
	if err != nil {
		t.Fatalf("CreateAddress() failed: %v", err)
	}
	if addr.EncodeAddress() != addr2.EncodeAddress() {
		t.Error("address derivation should be deterministic")
	}

	// A different lock-time derives a different address.
	addr3, _, err := CreateAddress(signer.PubKey(), testLockTime+1, chain.Testnet)
	if err != nil {
		t.Fatalf("CreateAddress() failed: %v", err)
	}
	if addr.EncodeAddress() == addr3.EncodeAddress() {
		t.Error("different lock-times should derive different addresses")
	}

	if _, _, err := CreateAddress(signer.PubKey(), 0, chain.Testnet); err == nil {
		t.Error("CreateAddress() should reject a zero lock-time")
	}
}

func TestSpendExecutesAgainstOutputs(t *testing.T) {
	signer := newTestSigner(t)
	other := newTestSigner(t)

	redeem, err := script.BuildHodlScript(testLockTime, signer.PubKey().SerializeCompressed())
	if err != nil {
		t.Fatalf("BuildHodlScript() failed: %v", err)
	}
	pkScript, err := script.P2SHScript(redeem, chain.Testnet)
	if err != nil {
		t.Fatalf("P2SHScript() failed: %v", err)
	}
	destScript, err := wallet.P2PKHScript(other.PubKey(), chain.Testnet)
	if err != nil {
		t.Fatalf("P2PKHScript() failed: %v", err)
	}

	values := map[wire.OutPoint]int64{
		testOutpoint(1): 400_000,
		testOutpoint(2): 600_000,
	}
	source := &fakeSource{outputs: make(map[wire.OutPoint]*backend.PrevOutput)}
	for op, value := range values {
		source.outputs[op] = &backend.PrevOutput{Value: value, PkScript: pkScript}
	}

	tx, err := Spend(context.Background(), source, &SpendParams{
		Signer:       signer,
		LockTime:     testLockTime,
		Outpoints:    []wire.OutPoint{testOutpoint(1), testOutpoint(2)},
		DestScript:   destScript,
		FeeRatePerKB: 0,
		Network:      chain.Testnet,
	})
	if err != nil {
		t.Fatalf("Spend() failed: %v", err)
	}

	if len(tx.TxIn) != 2 {
		t.Fatalf("expected 2 inputs, got %d", len(tx.TxIn))
	}
	if len(tx.TxOut) != 1 {
		t.Fatalf("expected 1 output, got %d", len(tx.TxOut))
	}
	if tx.LockTime != testLockTime {
		t.Errorf("lock-time = %d, want %d", tx.LockTime, testLockTime)
	}

	wantValue := int64(1_000_000) - txbuild.EstimateFee(2, 0)
	if tx.TxOut[0].Value != wantValue {
		t.Errorf("output value = %d, want %d", tx.TxOut[0].Value, wantValue)
	}

	// Every input must pass full script execution against its output.
	for i, txIn := range tx.TxIn {
		value := values[txIn.PreviousOutPoint]
		fetcher := txscript.NewCannedPrevOutputFetcher(pkScript, value)
		vm, err := txscript.NewEngine(pkScript, tx, i, txscript.StandardVerifyFlags,
			nil, nil, value, fetcher)
		if err != nil {
			t.Fatalf("NewEngine() for input %d failed: %v", i, err)
		}
		if err := vm.Execute(); err != nil {
			t.Fatalf("script execution for input %d failed: %v", i, err)
		}
	}
}

func TestSpendWrongScript(t *testing.T) {
	signer := newTestSigner(t)
	other := newTestSigner(t)

	// The outpoint is locked by a different key's hodl script.
	otherRedeem, err := script.BuildHodlScript(testLockTime, other.PubKey().SerializeCompressed())
	if err != nil {
		t.Fatalf("BuildHodlScript() failed: %v", err)
	}
	otherPkScript, err := script.P2SHScript(otherRedeem, chain.Testnet)
	if err != nil {
		t.Fatalf("P2SHScript() failed: %v", err)
	}
	destScript, err := wallet.P2PKHScript(signer.PubKey(), chain.Testnet)
	if err != nil {
		t.Fatalf("P2PKHScript() failed: %v", err)
	}

	source := &fakeSource{outputs: map[wire.OutPoint]*backend.PrevOutput{
		testOutpoint(1): {Value: 500_000, PkScript: otherPkScript},
	}}

	_, err = Spend(context.Background(), source, &SpendParams{
		Signer:       signer,
		LockTime:     testLockTime,
		Outpoints:    []wire.OutPoint{testOutpoint(1)},
		DestScript:   destScript,
		FeeRatePerKB: 0,
		Network:      chain.Testnet,
	})
	if !errors.Is(err, ErrWrongScript) {
		t.Errorf("expected ErrWrongScript, got %v", err)
	}
}

func TestSpendErrors(t *testing.T) {
	signer := newTestSigner(t)
	destScript, err := wallet.P2PKHScript(signer.PubKey(), chain.Testnet)
	if err != nil {
		t.Fatalf("P2PKHScript() failed: %v", err)
	}

	redeem, err := script.BuildHodlScript(testLockTime, signer.PubKey().SerializeCompressed())
	if err != nil {
		t.Fatalf("BuildHodlScript() failed: %v", err)
	}
	pkScript, err := script.P2SHScript(redeem, chain.Testnet)
	if err != nil {
		t.Fatalf("P2SHScript() failed: %v", err)
	}

	source := &fakeSource{outputs: map[wire.OutPoint]*backend.PrevOutput{
		testOutpoint(1): {Value: 1000, PkScript: pkScript},
	}}

	// No outpoints.
	_, err = Spend(context.Background(), source, &SpendParams{
		Signer: signer, LockTime: testLockTime, DestScript: destScript, Network: chain.Testnet,
	})
	if !errors.Is(err, txbuild.ErrNoInputs) {
		t.Errorf("expected ErrNoInputs, got %v", err)
	}

	// Unknown outpoint.
	_, err = Spend(context.Background(), source, &SpendParams{
		Signer:     signer,
		LockTime:   testLockTime,
		Outpoints:  []wire.OutPoint{testOutpoint(9)},
		DestScript: destScript,
		Network:    chain.Testnet,
	})
	if !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// Inputs too small to cover the fee.
	_, err = Spend(context.Background(), source, &SpendParams{
		Signer:     signer,
		LockTime:   testLockTime,
		Outpoints:  []wire.OutPoint{testOutpoint(1)},
		DestScript: destScript,
		Network:    chain.Testnet,
	})
	if !errors.Is(err, ErrDustOutput) {
		t.Errorf("expected ErrDustOutput, got %v", err)
	}
}
