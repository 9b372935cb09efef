// Package channel implements a unidirectional micropayment channel over a
// single P2SH deposit output. The sender issues successive payment
// transactions that supersede each other; the receiver accepts monotonically
// increasing values and can settle the latest state unilaterally; the sender
// can reclaim the deposit after the expiry lock-time.
package channel

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/hodlchan/hodlchan/internal/chain"
	"github.com/hodlchan/hodlchan/internal/script"
	"github.com/hodlchan/hodlchan/internal/txbuild"
)

// Channel errors.
var (
	ErrNegativeAmount    = errors.New("amount must be non-negative")
	ErrInsufficientFunds = errors.New("amount greater than unspent deposit")
	ErrInvalidPayment    = errors.New("invalid payment transaction")
	ErrNoPayment         = errors.New("no payment accepted yet")

	// ErrStalePayment marks a structurally valid payment whose value does
	// not exceed the already-accepted one. It matches ErrInvalidPayment
	// under errors.Is.
	ErrStalePayment = fmt.Errorf("%w: value does not exceed accepted payment", ErrInvalidPayment)
)

// Payment transactions have a fixed two-output shape. Callers never index
// TxOut positionally; they go through PaymentValue/ChangeValue.
const (
	changeOutputIndex  = 0
	paymentOutputIndex = 1
	paymentOutputCount = 2
)

// Params are the immutable parameters of a channel, fixed once the deposit
// is funded. The deposit script and its P2SH wrapping are pure functions of
// these fields.
type Params struct {
	// SenderScript is the sender's signature condition, required on every
	// spend of the deposit (<pubkey> OP_CHECKSIG).
	SenderScript []byte

	// ReceiverScript is the receiver's signature condition on the
	// cooperative branch (<pubkey> OP_CHECKSIGVERIFY).
	ReceiverScript []byte

	// ReceiverDestScript is the locking script payments are sent to.
	ReceiverDestScript []byte

	// ExpiryLockTime is the absolute lock-time after which the sender's
	// refund branch becomes valid.
	ExpiryLockTime int64

	// DepositOutpoint is the funding output backing the channel.
	DepositOutpoint wire.OutPoint
}

// DepositScript derives the two-branch redeem script locking the deposit.
func (p *Params) DepositScript() ([]byte, error) {
	return script.BuildDepositScript(p.SenderScript, p.ReceiverScript, p.ExpiryLockTime)
}

// DepositAddress derives the P2SH address the deposit must be sent to.
func (p *Params) DepositAddress(network chain.Network) (*btcutil.AddressScriptHash, error) {
	redeem, err := p.DepositScript()
	if err != nil {
		return nil, err
	}
	return script.P2SHAddress(redeem, network)
}

// DepositPkScript derives the P2SH locking script of the deposit output.
// Callers use it to verify a looked-up outpoint before trusting its value.
func (p *Params) DepositPkScript(network chain.Network) ([]byte, error) {
	redeem, err := p.DepositScript()
	if err != nil {
		return nil, err
	}
	return script.P2SHScript(redeem, network)
}

// paymentTx builds the canonical payment transaction: one input spending the
// deposit with a non-final sequence, change to the sender at index 0 and the
// payment to the receiver at index 1, lock-time zero.
func (p *Params) paymentTx(changeValue, paymentValue int64, changeScript, scriptSig []byte) *wire.MsgTx {
	outpoint := p.DepositOutpoint
	txIn := wire.NewTxIn(&outpoint, scriptSig, nil)
	txIn.Sequence = txbuild.SeqNonFinal

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(txIn)

	outs := make([]*wire.TxOut, paymentOutputCount)
	outs[changeOutputIndex] = wire.NewTxOut(changeValue, changeScript)
	outs[paymentOutputIndex] = wire.NewTxOut(paymentValue, p.ReceiverDestScript)
	for _, out := range outs {
		tx.AddTxOut(out)
	}
	return tx
}

// PaymentValue returns the receiver-destined value of a payment transaction,
// or 0 for nil or malformed transactions. It is the cumulative total paid
// over the channel's lifetime, not an increment.
func PaymentValue(tx *wire.MsgTx) int64 {
	if tx == nil || len(tx.TxOut) != paymentOutputCount {
		return 0
	}
	return tx.TxOut[paymentOutputIndex].Value
}

// ChangeValue returns the sender-destined change of a payment transaction,
// or 0 for nil or malformed transactions.
func ChangeValue(tx *wire.MsgTx) int64 {
	if tx == nil || len(tx.TxOut) != paymentOutputCount {
		return 0
	}
	return tx.TxOut[changeOutputIndex].Value
}
