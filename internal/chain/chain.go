// Package chain selects Bitcoin network parameters. The active network is an
// explicit value threaded through callers - there is no process-wide switch.
package chain

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// Network represents mainnet or testnet.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// Params returns the btcd chain parameters for this network.
func (n Network) Params() *chaincfg.Params {
	if n == Testnet {
		return &chaincfg.TestNet3Params
	}
	return &chaincfg.MainNetParams
}

// Parse converts a network name ("mainnet" or "testnet") to a Network.
func Parse(s string) (Network, error) {
	switch s {
	case string(Mainnet), "":
		return Mainnet, nil
	case string(Testnet):
		return Testnet, nil
	default:
		return "", fmt.Errorf("unknown network: %s", s)
	}
}
