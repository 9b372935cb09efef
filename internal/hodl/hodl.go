// Package hodl creates and spends time-locked outputs: coins sent to a hodl
// address are unspendable by anyone, owner included, until an absolute
// lock-time has passed.
package hodl

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/hodlchan/hodlchan/internal/backend"
	"github.com/hodlchan/hodlchan/internal/chain"
	"github.com/hodlchan/hodlchan/internal/script"
	"github.com/hodlchan/hodlchan/internal/txbuild"
	"github.com/hodlchan/hodlchan/internal/wallet"
)

var (
	// ErrWrongScript means a looked-up outpoint is not locked by the hodl
	// script derived from the key and lock-time. Spending must stop rather
	// than sign against a different script.
	ErrWrongScript = errors.New("outpoint is not locked by the expected script")

	// ErrDustOutput means the inputs do not cover the fee with anything
	// left over.
	ErrDustOutput = errors.New("spend output would be zero or negative")
)

// CreateAddress derives the P2SH address and redeem script locking funds with
// a CLTV check until lockTime.
func CreateAddress(pubKey *btcec.PublicKey, lockTime int64, network chain.Network) (*btcutil.AddressScriptHash, []byte, error) {
	redeem, err := script.BuildHodlScript(lockTime, pubKey.SerializeCompressed())
	if err != nil {
		return nil, nil, err
	}
	addr, err := script.P2SHAddress(redeem, network)
	if err != nil {
		return nil, nil, err
	}
	return addr, redeem, nil
}

// SpendParams describe a spend of one or more hodl outputs created with the
// same key and lock-time.
type SpendParams struct {
	Signer       wallet.Signer
	LockTime     int64
	Outpoints    []wire.OutPoint
	DestScript   []byte
	FeeRatePerKB int64
	Network      chain.Network
}

// Spend resolves each outpoint, verifies it is locked by the expected hodl
// script, and builds a signed transaction sweeping all of them to the
// destination. The transaction carries the lock-time itself, so the network
// rejects it until the lock has expired.
func Spend(ctx context.Context, source backend.OutputSource, p *SpendParams) (*wire.MsgTx, error) {
	if len(p.Outpoints) == 0 {
		return nil, txbuild.ErrNoInputs
	}
	if len(p.DestScript) == 0 {
		return nil, fmt.Errorf("%w: destination script is empty", script.ErrInvalidParameter)
	}

	redeem, err := script.BuildHodlScript(p.LockTime, p.Signer.PubKey().SerializeCompressed())
	if err != nil {
		return nil, err
	}
	expectedPkScript, err := script.P2SHScript(redeem, p.Network)
	if err != nil {
		return nil, err
	}

	var totalIn int64
	inputs := make([]txbuild.Input, len(p.Outpoints))
	for i, outpoint := range p.Outpoints {
		prev, err := source.GetTxOut(ctx, outpoint)
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(prev.PkScript, expectedPkScript) {
			return nil, fmt.Errorf("%w: %s", ErrWrongScript, outpoint.String())
		}
		totalIn += prev.Value
		inputs[i] = txbuild.Input{Outpoint: outpoint, Sequence: txbuild.SeqLockTime}
	}

	fee := txbuild.EstimateFee(len(inputs), p.FeeRatePerKB)
	outValue := totalIn - fee
	if outValue <= 0 {
		return nil, fmt.Errorf("%w: inputs %d, fee %d", ErrDustOutput, totalIn, fee)
	}

	tx, err := txbuild.BuildSpend(inputs,
		[]txbuild.Output{{Value: outValue, PkScript: p.DestScript}},
		uint32(p.LockTime))
	if err != nil {
		return nil, err
	}

	for i := range tx.TxIn {
		digest, err := txbuild.ComputeDigest(redeem, tx, i, txscript.SigHashAll)
		if err != nil {
			return nil, err
		}
		sig, err := wallet.SignWithHashType(p.Signer, digest, txscript.SigHashAll)
		if err != nil {
			return nil, err
		}
		scriptSig, err := script.BuildHodlScriptSig(sig, redeem)
		if err != nil {
			return nil, err
		}
		tx.TxIn[i].SignatureScript = scriptSig
	}

	return tx, nil
}
