package channel

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/hodlchan/hodlchan/internal/script"
	"github.com/hodlchan/hodlchan/internal/txbuild"
	"github.com/hodlchan/hodlchan/internal/wallet"
)

// Sender is the paying side of a channel. SendPayment is the only mutator;
// the total sent is derived from the last payment transaction rather than
// tracked separately, so the two can never drift apart. Callers must
// serialize access to one Sender.
type Sender struct {
	params       *Params
	signer       wallet.Signer
	changeScript []byte
	depositValue int64

	lastPaymentTx *wire.MsgTx
}

// NewSender creates the sender side of a channel whose deposit outpoint and
// value are known.
func NewSender(params *Params, signer wallet.Signer, changeScript []byte, depositValue int64) (*Sender, error) {
	if _, err := params.DepositScript(); err != nil {
		return nil, err
	}
	if depositValue <= 0 {
		return nil, fmt.Errorf("%w: deposit value %d", ErrInsufficientFunds, depositValue)
	}
	if len(changeScript) == 0 {
		return nil, fmt.Errorf("%w: change script is empty", script.ErrInvalidParameter)
	}
	return &Sender{
		params:       params,
		signer:       signer,
		changeScript: changeScript,
		depositValue: depositValue,
	}, nil
}

// TotalSent returns the cumulative value committed to the receiver as of the
// most recent payment transaction.
func (s *Sender) TotalSent() int64 {
	return PaymentValue(s.lastPaymentTx)
}

// LastPaymentTx returns the most recently sent payment transaction, or nil.
func (s *Sender) LastPaymentTx() *wire.MsgTx {
	return s.lastPaymentTx
}

// MakePaymentTx builds and signs a payment transaction committing
// deltaAmount more to the receiver. deltaAmount may be zero, which is how
// the initial null payment is produced. Channel state is not changed.
//
// The signature commits under SIGHASH_ALL|ANYONECANPAY, so each payment
// stands alone against the deposit outpoint and later payments supersede
// earlier ones without any cooperation from the receiver.
func (s *Sender) MakePaymentTx(deltaAmount, fee int64) (*wire.MsgTx, error) {
	if deltaAmount < 0 {
		return nil, fmt.Errorf("%w: delta %d", ErrNegativeAmount, deltaAmount)
	}
	if fee < 0 {
		return nil, fmt.Errorf("%w: fee %d", ErrNegativeAmount, fee)
	}

	changeValue := s.depositValue - s.TotalSent() - deltaAmount - fee
	if changeValue < 0 {
		return nil, fmt.Errorf("%w: need %d more", ErrInsufficientFunds, -changeValue)
	}
	paymentValue := s.depositValue - changeValue - fee

	depositScript, err := s.params.DepositScript()
	if err != nil {
		return nil, err
	}

	unsigned := s.params.paymentTx(changeValue, paymentValue, s.changeScript, nil)

	hashType := txscript.SigHashAll | txscript.SigHashAnyOneCanPay
	digest, err := txbuild.ComputeDigest(depositScript, unsigned, 0, hashType)
	if err != nil {
		return nil, err
	}
	sig, err := wallet.SignWithHashType(s.signer, digest, hashType)
	if err != nil {
		return nil, err
	}
	scriptSig, err := script.BuildPaymentScriptSig(sig)
	if err != nil {
		return nil, err
	}

	return s.params.paymentTx(changeValue, paymentValue, s.changeScript, scriptSig), nil
}

// SendPayment builds a payment transaction and records it as the channel's
// latest state. Returns the signed transaction to hand to the receiver.
func (s *Sender) SendPayment(deltaAmount, fee int64) (*wire.MsgTx, error) {
	tx, err := s.MakePaymentTx(deltaAmount, fee)
	if err != nil {
		return nil, err
	}
	s.lastPaymentTx = tx
	return tx, nil
}

// MakeRefundTx builds and signs the transaction returning the whole deposit
// (less fee) to the sender via the post-expiry branch. It never reads the
// payment state: previous payments are cancelled if it confirms. Pure; may
// be called any number of times.
//
// The transaction carries the expiry as its lock-time, so the network
// rejects it until the expiry has passed.
func (s *Sender) MakeRefundTx(fee int64) (*wire.MsgTx, error) {
	if fee < 0 {
		return nil, fmt.Errorf("%w: fee %d", ErrNegativeAmount, fee)
	}
	refundValue := s.depositValue - fee
	if refundValue < 0 {
		return nil, fmt.Errorf("%w: fee %d exceeds deposit", ErrInsufficientFunds, fee)
	}

	depositScript, err := s.params.DepositScript()
	if err != nil {
		return nil, err
	}

	tx, err := txbuild.BuildSpend(
		[]txbuild.Input{{Outpoint: s.params.DepositOutpoint, Sequence: txbuild.SeqLockTime}},
		[]txbuild.Output{{Value: refundValue, PkScript: s.changeScript}},
		uint32(s.params.ExpiryLockTime),
	)
	if err != nil {
		return nil, err
	}

	digest, err := txbuild.ComputeDigest(depositScript, tx, 0, txscript.SigHashAll)
	if err != nil {
		return nil, err
	}
	sig, err := wallet.SignWithHashType(s.signer, digest, txscript.SigHashAll)
	if err != nil {
		return nil, err
	}
	scriptSig, err := script.BuildRefundScriptSig(sig, depositScript)
	if err != nil {
		return nil, err
	}
	tx.TxIn[0].SignatureScript = scriptSig

	return tx, nil
}
