package channel

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/hodlchan/hodlchan/internal/script"
	"github.com/hodlchan/hodlchan/internal/txbuild"
	"github.com/hodlchan/hodlchan/internal/wallet"
)

// sigHashMask extracts the base sighash type from the tag byte.
const sigHashMask = 0x1f

// Receiver is the paid side of a channel. It accepts payment transactions
// with monotonically non-decreasing value: once accepted, a payment is only
// ever replaced by a strictly higher-value one. RecvPaymentTx is the only
// mutator; callers must serialize access to one Receiver.
type Receiver struct {
	params       *Params
	signer       wallet.Signer
	depositValue int64

	lastPaymentTx *wire.MsgTx
}

// NewReceiver creates the receiver side of a channel whose deposit outpoint
// and value are known.
func NewReceiver(params *Params, signer wallet.Signer, depositValue int64) (*Receiver, error) {
	if _, err := params.DepositScript(); err != nil {
		return nil, err
	}
	if depositValue <= 0 {
		return nil, fmt.Errorf("%w: deposit value %d", ErrInsufficientFunds, depositValue)
	}
	return &Receiver{
		params:       params,
		signer:       signer,
		depositValue: depositValue,
	}, nil
}

// Received returns the cumulative value of the last accepted payment.
func (r *Receiver) Received() int64 {
	return PaymentValue(r.lastPaymentTx)
}

// LastPaymentTx returns the most recently accepted payment transaction, or
// nil.
func (r *Receiver) LastPaymentTx() *wire.MsgTx {
	return r.lastPaymentTx
}

// ValidatePaymentTx checks a payment transaction without changing channel
// state. It verifies that the transaction spends exactly the deposit
// outpoint, that it has the canonical two-output payment shape paying the
// receiver's destination script, that the sender's signature is valid for
// the deposit script under the sighash mode the signature itself claims,
// and that the paid value is not below the already-accepted value.
func (r *Receiver) ValidatePaymentTx(tx *wire.MsgTx) error {
	if err := r.checkStructure(tx); err != nil {
		return err
	}
	if err := r.checkSenderSignature(tx); err != nil {
		return err
	}
	if PaymentValue(tx) < r.Received() {
		return ErrStalePayment
	}
	return nil
}

func (r *Receiver) checkStructure(tx *wire.MsgTx) error {
	if tx == nil {
		return fmt.Errorf("%w: nil transaction", ErrInvalidPayment)
	}
	if len(tx.TxIn) != 1 {
		return fmt.Errorf("%w: expected 1 input, got %d", ErrInvalidPayment, len(tx.TxIn))
	}
	if tx.TxIn[0].PreviousOutPoint != r.params.DepositOutpoint {
		return fmt.Errorf("%w: does not spend the deposit outpoint", ErrInvalidPayment)
	}
	if tx.TxIn[0].Sequence == wire.MaxTxInSequenceNum {
		return fmt.Errorf("%w: final sequence on payment input", ErrInvalidPayment)
	}
	if len(tx.TxOut) != paymentOutputCount {
		return fmt.Errorf("%w: expected %d outputs, got %d", ErrInvalidPayment, paymentOutputCount, len(tx.TxOut))
	}
	if tx.LockTime != 0 {
		return fmt.Errorf("%w: non-zero lock-time", ErrInvalidPayment)
	}
	if !bytes.Equal(tx.TxOut[paymentOutputIndex].PkScript, r.params.ReceiverDestScript) {
		return fmt.Errorf("%w: payment output pays the wrong script", ErrInvalidPayment)
	}

	paymentValue := tx.TxOut[paymentOutputIndex].Value
	changeValue := tx.TxOut[changeOutputIndex].Value
	if paymentValue < 0 || changeValue < 0 {
		return fmt.Errorf("%w: negative output value", ErrInvalidPayment)
	}
	if paymentValue+changeValue > r.depositValue {
		return fmt.Errorf("%w: outputs exceed deposit value", ErrInvalidPayment)
	}
	return nil
}

func (r *Receiver) checkSenderSignature(tx *wire.MsgTx) error {
	sigBytes, err := singlePush(tx.TxIn[0].SignatureScript)
	if err != nil {
		return err
	}
	if len(sigBytes) < 9 {
		return fmt.Errorf("%w: signature too short", ErrInvalidPayment)
	}

	// The last byte is the sighash tag; verify under the mode the
	// signature claims, but only accept SIGHASH_ALL as the base type so
	// the sender cannot sign away the output set.
	hashType := txscript.SigHashType(sigBytes[len(sigBytes)-1])
	if hashType&sigHashMask != txscript.SigHashAll {
		return fmt.Errorf("%w: unexpected sighash type 0x%02x", ErrInvalidPayment, byte(hashType))
	}

	sig, err := btcecdsa.ParseDERSignature(sigBytes[:len(sigBytes)-1])
	if err != nil {
		return fmt.Errorf("%w: malformed signature: %v", ErrInvalidPayment, err)
	}

	senderPubKeyBytes, err := script.PubKeyFromCheckSig(r.params.SenderScript)
	if err != nil {
		return err
	}
	senderPubKey, err := btcec.ParsePubKey(senderPubKeyBytes)
	if err != nil {
		return fmt.Errorf("%w: malformed sender pubkey: %v", ErrInvalidPayment, err)
	}

	depositScript, err := r.params.DepositScript()
	if err != nil {
		return err
	}
	digest, err := txbuild.ComputeDigest(depositScript, tx, 0, hashType)
	if err != nil {
		return err
	}
	if !sig.Verify(digest, senderPubKey) {
		return fmt.Errorf("%w: sender signature does not verify", ErrInvalidPayment)
	}
	return nil
}

// singlePush extracts the payload of a scriptSig consisting of exactly one
// data push.
func singlePush(scriptSig []byte) ([]byte, error) {
	tokenizer := txscript.MakeScriptTokenizer(0, scriptSig)
	if !tokenizer.Next() || len(tokenizer.Data()) == 0 {
		return nil, fmt.Errorf("%w: scriptSig is not a data push", ErrInvalidPayment)
	}
	data := tokenizer.Data()
	if tokenizer.Next() {
		return nil, fmt.Errorf("%w: trailing scriptSig data", ErrInvalidPayment)
	}
	if err := tokenizer.Err(); err != nil {
		return nil, fmt.Errorf("%w: malformed scriptSig: %v", ErrInvalidPayment, err)
	}
	return data, nil
}

// RecvPaymentTx validates a payment transaction and, if it pays strictly
// more than the last accepted one, records it as the channel's latest state.
// The returned delta is the increase over the previous payment (or the full
// value for the first one). A non-positive delta is reported but never
// applied; a negative delta additionally carries ErrStalePayment so callers
// can spot a stale or adversarial payment.
func (r *Receiver) RecvPaymentTx(tx *wire.MsgTx) (int64, error) {
	err := r.ValidatePaymentTx(tx)
	if err != nil {
		if errors.Is(err, ErrStalePayment) {
			return PaymentValue(tx) - r.Received(), err
		}
		return 0, err
	}

	paymentValue := PaymentValue(tx)
	if r.lastPaymentTx == nil {
		r.lastPaymentTx = tx
		return paymentValue, nil
	}

	delta := paymentValue - r.Received()
	if delta > 0 {
		r.lastPaymentTx = tx
	}
	return delta, nil
}

// MakeFinalizationTx re-signs the last accepted payment transaction's input
// for the receiver's branch of the deposit script, preserving its outputs
// and lock-time verbatim. Broadcasting it settles the channel at the most
// recent state.
func (r *Receiver) MakeFinalizationTx() (*wire.MsgTx, error) {
	if r.lastPaymentTx == nil {
		return nil, ErrNoPayment
	}

	depositScript, err := r.params.DepositScript()
	if err != nil {
		return nil, err
	}

	digest, err := txbuild.ComputeDigest(depositScript, r.lastPaymentTx, 0, txscript.SigHashAll)
	if err != nil {
		return nil, err
	}
	receiverSig, err := wallet.SignWithHashType(r.signer, digest, txscript.SigHashAll)
	if err != nil {
		return nil, err
	}
	scriptSig, err := script.BuildFinalizeScriptSig(
		r.lastPaymentTx.TxIn[0].SignatureScript, receiverSig, depositScript)
	if err != nil {
		return nil, err
	}

	outpoint := r.lastPaymentTx.TxIn[0].PreviousOutPoint
	txIn := wire.NewTxIn(&outpoint, scriptSig, nil)
	txIn.Sequence = r.lastPaymentTx.TxIn[0].Sequence

	tx := wire.NewMsgTx(r.lastPaymentTx.Version)
	tx.AddTxIn(txIn)
	for _, out := range r.lastPaymentTx.TxOut {
		tx.AddTxOut(wire.NewTxOut(out.Value, out.PkScript))
	}
	tx.LockTime = r.lastPaymentTx.LockTime

	return tx, nil
}
