package wallet

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/hodlchan/hodlchan/internal/chain"
)

func newTestKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey() failed: %v", err)
	}
	return priv
}

func TestKeySignerSignDigest(t *testing.T) {
	priv := newTestKey(t)
	signer := NewKeySigner(priv)

	digest := sha256.Sum256([]byte("test digest"))

	sigBytes, err := signer.SignDigest(digest[:])
	if err != nil {
		t.Fatalf("SignDigest() failed: %v", err)
	}
	if sigBytes[0] != 0x30 {
		t.Errorf("signature should be DER encoded, first byte 0x%02x", sigBytes[0])
	}

	sig, err := btcecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		t.Fatalf("ParseDERSignature() failed: %v", err)
	}
	if !sig.Verify(digest[:], signer.PubKey()) {
		t.Error("signature does not verify against its own pubkey")
	}

	if _, err := signer.SignDigest([]byte("short")); err == nil {
		t.Error("SignDigest() should reject non-32-byte digests")
	}
}

func TestSignWithHashType(t *testing.T) {
	signer := NewKeySigner(newTestKey(t))
	digest := sha256.Sum256([]byte("tagged"))

	sig, err := SignWithHashType(signer, digest[:], txscript.SigHashAll|txscript.SigHashAnyOneCanPay)
	if err != nil {
		t.Fatalf("SignWithHashType() failed: %v", err)
	}
	if sig[len(sig)-1] != byte(txscript.SigHashAll|txscript.SigHashAnyOneCanPay) {
		t.Errorf("last byte = 0x%02x, want the sighash tag", sig[len(sig)-1])
	}

	if _, err := btcecdsa.ParseDERSignature(sig[:len(sig)-1]); err != nil {
		t.Errorf("body before the tag should be valid DER: %v", err)
	}
}

func TestLoadWIF(t *testing.T) {
	priv := newTestKey(t)

	wif, err := btcutil.NewWIF(priv, chain.Testnet.Params(), true)
	if err != nil {
		t.Fatalf("NewWIF() failed: %v", err)
	}

	signer, err := LoadWIF(wif.String(), chain.Testnet)
	if err != nil {
		t.Fatalf("LoadWIF() failed: %v", err)
	}
	if !signer.PubKey().IsEqual(priv.PubKey()) {
		t.Error("loaded key does not match the original")
	}

	if _, err := LoadWIF(wif.String(), chain.Mainnet); err == nil {
		t.Error("LoadWIF() should reject a testnet key on mainnet")
	}
	if _, err := LoadWIF("not-a-wif", chain.Testnet); err == nil {
		t.Error("LoadWIF() should reject garbage")
	}
}

func TestAddressScripts(t *testing.T) {
	priv := newTestKey(t)

	pkScript, err := P2PKHScript(priv.PubKey(), chain.Testnet)
	if err != nil {
		t.Fatalf("P2PKHScript() failed: %v", err)
	}
	if len(pkScript) != 25 {
		t.Errorf("P2PKH script length = %d, want 25", len(pkScript))
	}

	addr, err := btcutil.NewAddressPubKeyHash(
		btcutil.Hash160(priv.PubKey().SerializeCompressed()), chain.Testnet.Params())
	if err != nil {
		t.Fatalf("NewAddressPubKeyHash() failed: %v", err)
	}

	decoded, err := DecodeAddressScript(addr.EncodeAddress(), chain.Testnet)
	if err != nil {
		t.Fatalf("DecodeAddressScript() failed: %v", err)
	}
	if string(decoded) != string(pkScript) {
		t.Error("decoded script should match the derived P2PKH script")
	}

	if _, err := DecodeAddressScript(addr.EncodeAddress(), chain.Mainnet); err == nil {
		t.Error("DecodeAddressScript() should reject a testnet address on mainnet")
	}
	if _, err := DecodeAddressScript("bogus", chain.Testnet); err == nil {
		t.Error("DecodeAddressScript() should reject garbage")
	}
}
