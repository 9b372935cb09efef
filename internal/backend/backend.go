// Package backend provides the blockchain collaborators the core depends
// on: UTXO lookup and fee-rate estimation. All calls are blocking and fail
// fast - retries are the caller's business.
package backend

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/wire"
)

// Common errors.
var (
	ErrNotConnected = errors.New("backend not connected")
	ErrNotFound     = errors.New("output not found")
)

// PrevOutput is the resolved state of an unspent outpoint.
type PrevOutput struct {
	// Value in satoshis.
	Value int64

	// PkScript is the locking script. Callers must verify it equals the
	// expected script before trusting Value.
	PkScript []byte
}

// OutputSource resolves outpoints to their current locking script and value.
type OutputSource interface {
	// GetTxOut returns the unspent output at the outpoint, or ErrNotFound
	// if it does not exist or has been spent.
	GetTxOut(ctx context.Context, outpoint wire.OutPoint) (*PrevOutput, error)
}

// FeeEstimator supplies a fee rate in satoshis per kilobyte. A non-positive
// rate means "unknown"; callers substitute a floor rate rather than fail.
type FeeEstimator interface {
	EstimateFeeRate(ctx context.Context, targetBlocks int) (int64, error)
}
