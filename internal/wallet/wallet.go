// Package wallet holds private keys and exposes digest signing to the rest
// of the system. Nothing outside this package touches key material.
package wallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/hodlchan/hodlchan/internal/chain"
)

// Signer signs message digests. Implementations are opaque to callers: the
// digest goes in, raw DER signature bytes come out, and the caller appends
// the one-byte sighash-type tag itself.
type Signer interface {
	SignDigest(digest []byte) ([]byte, error)
	PubKey() *btcec.PublicKey
}

// KeySigner signs with an in-memory secp256k1 private key.
type KeySigner struct {
	priv *btcec.PrivateKey
}

// NewKeySigner creates a signer around a private key.
func NewKeySigner(priv *btcec.PrivateKey) *KeySigner {
	return &KeySigner{priv: priv}
}

// SignDigest signs a 32-byte digest and returns the DER-encoded signature.
func (k *KeySigner) SignDigest(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	sig := btcecdsa.Sign(k.priv, digest)
	return sig.Serialize(), nil
}

// PubKey returns the public key corresponding to the signing key.
func (k *KeySigner) PubKey() *btcec.PublicKey {
	return k.priv.PubKey()
}

// SignWithHashType signs a digest and appends the sighash-type tag byte,
// producing the signature form that goes into a scriptSig.
func SignWithHashType(signer Signer, digest []byte, hashType txscript.SigHashType) ([]byte, error) {
	sig, err := signer.SignDigest(digest)
	if err != nil {
		return nil, fmt.Errorf("signing failed: %w", err)
	}
	return append(sig, byte(hashType)), nil
}

// LoadWIF decodes a WIF-encoded private key and checks it against the
// network.
func LoadWIF(wifStr string, network chain.Network) (*KeySigner, error) {
	wif, err := btcutil.DecodeWIF(wifStr)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if !wif.IsForNet(network.Params()) {
		return nil, fmt.Errorf("private key is not for %s", network)
	}
	return NewKeySigner(wif.PrivKey), nil
}

// P2PKHScript returns the pay-to-pubkey-hash locking script for a compressed
// public key.
func P2PKHScript(pubKey *btcec.PublicKey, network chain.Network) ([]byte, error) {
	addr, err := btcutil.NewAddressPubKeyHash(
		btcutil.Hash160(pubKey.SerializeCompressed()), network.Params())
	if err != nil {
		return nil, fmt.Errorf("failed to derive P2PKH address: %w", err)
	}
	return txscript.PayToAddrScript(addr)
}

// DecodeAddressScript parses an address string and returns its locking
// script.
func DecodeAddressScript(address string, network chain.Network) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, network.Params())
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}
	if !addr.IsForNet(network.Params()) {
		return nil, fmt.Errorf("address %q is not for %s", address, network)
	}
	return txscript.PayToAddrScript(addr)
}
