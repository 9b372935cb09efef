// Package script builds the locking scripts used by the hodl and
// micropayment-channel spend paths, and the scriptSigs that satisfy them.
// All constructors are pure: equal inputs yield byte-identical scripts.
package script

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/hodlchan/hodlchan/internal/chain"
)

// ErrInvalidParameter is returned for malformed script inputs.
var ErrInvalidParameter = errors.New("invalid script parameter")

const (
	compressedPubKeyLen = 33

	// maxLockTime is the largest value representable in the transaction
	// nLockTime field.
	maxLockTime = 0xffffffff
)

// BuildHodlScript creates the time-locked single-signer redeem script.
//
// Script structure:
//
//	<lockTime> OP_CHECKLOCKTIMEVERIFY OP_DROP <pubkey> OP_CHECKSIG
//
// Redeemable only by a signature from pubkey in a transaction whose own
// lock-time is >= lockTime and whose claiming input is non-final.
func BuildHodlScript(lockTime int64, pubKey []byte) ([]byte, error) {
	if err := checkLockTime(lockTime); err != nil {
		return nil, err
	}
	if len(pubKey) != compressedPubKeyLen {
		return nil, fmt.Errorf("%w: pubkey must be %d bytes (compressed), got %d",
			ErrInvalidParameter, compressedPubKeyLen, len(pubKey))
	}

	builder := txscript.NewScriptBuilder()
	builder.AddInt64(lockTime)
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(pubKey)
	builder.AddOp(txscript.OP_CHECKSIG)

	return builder.Script()
}

// BuildCheckSigScript creates the script <pubkey> OP_CHECKSIG, the sender's
// branch fragment of the channel deposit.
func BuildCheckSigScript(pubKey []byte) ([]byte, error) {
	return buildSigFragment(pubKey, txscript.OP_CHECKSIG)
}

// BuildCheckSigVerifyScript creates the script <pubkey> OP_CHECKSIGVERIFY,
// the receiver's branch fragment of the channel deposit.
func BuildCheckSigVerifyScript(pubKey []byte) ([]byte, error) {
	return buildSigFragment(pubKey, txscript.OP_CHECKSIGVERIFY)
}

func buildSigFragment(pubKey []byte, op byte) ([]byte, error) {
	if len(pubKey) != compressedPubKeyLen {
		return nil, fmt.Errorf("%w: pubkey must be %d bytes (compressed), got %d",
			ErrInvalidParameter, compressedPubKeyLen, len(pubKey))
	}
	builder := txscript.NewScriptBuilder()
	builder.AddData(pubKey)
	builder.AddOp(op)
	return builder.Script()
}

// BuildDepositScript creates the two-branch channel deposit redeem script.
//
// Script structure:
//
//	OP_IF
//	    <receiverScript>
//	OP_ELSE
//	    <expiryLockTime> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	OP_ENDIF
//	<senderScript>
//
// Branch selection is done by the scriptSig: a true selector runs the
// receiver's script, a false selector requires the spending transaction's
// lock-time to have reached expiryLockTime. Both branches additionally
// require a signature satisfying senderScript.
//
// The sender/receiver fragments are raw scripts and are spliced in verbatim,
// so their internal pushes survive byte-for-byte.
func BuildDepositScript(senderScript, receiverScript []byte, expiryLockTime int64) ([]byte, error) {
	if err := checkLockTime(expiryLockTime); err != nil {
		return nil, err
	}
	if len(senderScript) == 0 {
		return nil, fmt.Errorf("%w: sender script is empty", ErrInvalidParameter)
	}
	if len(receiverScript) == 0 {
		return nil, fmt.Errorf("%w: receiver script is empty", ErrInvalidParameter)
	}

	elseBuilder := txscript.NewScriptBuilder()
	elseBuilder.AddOp(txscript.OP_ELSE)
	elseBuilder.AddInt64(expiryLockTime)
	elseBuilder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	elseBuilder.AddOp(txscript.OP_DROP)
	elseBuilder.AddOp(txscript.OP_ENDIF)
	elsePart, err := elseBuilder.Script()
	if err != nil {
		return nil, err
	}

	script := make([]byte, 0, 1+len(receiverScript)+len(elsePart)+len(senderScript))
	script = append(script, txscript.OP_IF)
	script = append(script, receiverScript...)
	script = append(script, elsePart...)
	script = append(script, senderScript...)
	return script, nil
}

// PubKeyFromCheckSig extracts the public key from a <pubkey> OP_CHECKSIG or
// <pubkey> OP_CHECKSIGVERIFY script fragment.
func PubKeyFromCheckSig(fragment []byte) ([]byte, error) {
	tokenizer := txscript.MakeScriptTokenizer(0, fragment)

	if !tokenizer.Next() {
		return nil, fmt.Errorf("%w: expected pubkey push", ErrInvalidParameter)
	}
	pubKey := tokenizer.Data()
	if len(pubKey) != compressedPubKeyLen {
		return nil, fmt.Errorf("%w: pubkey must be %d bytes", ErrInvalidParameter, compressedPubKeyLen)
	}

	if !tokenizer.Next() ||
		(tokenizer.Opcode() != txscript.OP_CHECKSIG && tokenizer.Opcode() != txscript.OP_CHECKSIGVERIFY) {
		return nil, fmt.Errorf("%w: expected OP_CHECKSIG", ErrInvalidParameter)
	}
	if tokenizer.Next() {
		return nil, fmt.Errorf("%w: trailing opcodes after OP_CHECKSIG", ErrInvalidParameter)
	}

	return pubKey, nil
}

// P2SHAddress derives the pay-to-script-hash address wrapping a redeem script.
func P2SHAddress(redeemScript []byte, network chain.Network) (*btcutil.AddressScriptHash, error) {
	addr, err := btcutil.NewAddressScriptHash(redeemScript, network.Params())
	if err != nil {
		return nil, fmt.Errorf("failed to create P2SH address: %w", err)
	}
	return addr, nil
}

// P2SHScript returns the P2SH scriptPubKey wrapping a redeem script.
func P2SHScript(redeemScript []byte, network chain.Network) ([]byte, error) {
	addr, err := P2SHAddress(redeemScript, network)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(addr)
}

// BuildHodlScriptSig creates the scriptSig spending a hodl output.
//
// Stack: <signature> <redeemScript>
func BuildHodlScriptSig(signature, redeemScript []byte) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddData(signature)
	builder.AddData(redeemScript)
	return builder.Script()
}

// BuildPaymentScriptSig creates the partial scriptSig carried by a channel
// payment transaction: the sender's signature alone. The receiver completes
// it at finalization time.
func BuildPaymentScriptSig(senderSig []byte) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddData(senderSig)
	return builder.Script()
}

// BuildFinalizeScriptSig completes a payment scriptSig for the receiver's
// branch of the deposit script.
//
// Stack: <senderSig> <receiverSig> <1> <depositScript>
func BuildFinalizeScriptSig(paymentScriptSig, receiverSig, depositScript []byte) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddData(receiverSig)
	builder.AddInt64(1) // selects the OP_IF branch
	builder.AddData(depositScript)
	suffix, err := builder.Script()
	if err != nil {
		return nil, err
	}

	scriptSig := make([]byte, 0, len(paymentScriptSig)+len(suffix))
	scriptSig = append(scriptSig, paymentScriptSig...)
	scriptSig = append(scriptSig, suffix...)
	return scriptSig, nil
}

// BuildRefundScriptSig creates the scriptSig spending the deposit via the
// sender's post-expiry branch.
//
// Stack: <senderSig> <0> <depositScript>
func BuildRefundScriptSig(senderSig, depositScript []byte) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddData(senderSig)
	builder.AddInt64(0) // selects the OP_ELSE branch
	builder.AddData(depositScript)
	return builder.Script()
}

func checkLockTime(lockTime int64) error {
	if lockTime <= 0 {
		return fmt.Errorf("%w: lock time must be positive", ErrInvalidParameter)
	}
	if lockTime > maxLockTime {
		return fmt.Errorf("%w: lock time %d exceeds maximum", ErrInvalidParameter, lockTime)
	}
	return nil
}
