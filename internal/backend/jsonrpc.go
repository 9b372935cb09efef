package backend

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/wire"
)

// JSONRPCBackend talks JSON-RPC to a Bitcoin Core style node.
type JSONRPCBackend struct {
	rpcURL     string
	rpcUser    string
	rpcPass    string
	httpClient *http.Client
	mu         sync.RWMutex
	connected  bool
	requestID  atomic.Uint64
}

// NewJSONRPCBackend creates a new JSON-RPC backend.
func NewJSONRPCBackend(rpcURL, user, pass string) *JSONRPCBackend {
	return &JSONRPCBackend{
		rpcURL:  rpcURL,
		rpcUser: user,
		rpcPass: pass,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Connect tests the connection to the node.
func (j *JSONRPCBackend) Connect(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.call(ctx, "getblockchaininfo", []interface{}{}); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	j.connected = true
	return nil
}

// Close closes the connection.
func (j *JSONRPCBackend) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.connected = false
	return nil
}

// IsConnected returns true if connected.
func (j *JSONRPCBackend) IsConnected() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.connected
}

// GetTxOut resolves an unspent output via gettxout, considering the mempool.
func (j *JSONRPCBackend) GetTxOut(ctx context.Context, outpoint wire.OutPoint) (*PrevOutput, error) {
	result, err := j.call(ctx, "gettxout", []interface{}{
		outpoint.Hash.String(),
		outpoint.Index,
		true,
	})
	if err != nil {
		return nil, fmt.Errorf("gettxout failed: %w", err)
	}

	// gettxout returns null for missing or spent outputs.
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, outpoint.String())
	}

	var out struct {
		Value        float64 `json:"value"`
		ScriptPubKey struct {
			Hex string `json:"hex"`
		} `json:"scriptPubKey"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("failed to parse gettxout result: %w", err)
	}

	pkScript, err := hex.DecodeString(out.ScriptPubKey.Hex)
	if err != nil {
		return nil, fmt.Errorf("failed to parse scriptPubKey: %w", err)
	}

	return &PrevOutput{
		// Convert BTC to satoshis.
		Value:    int64(out.Value*1e8 + 0.5),
		PkScript: pkScript,
	}, nil
}

// EstimateFeeRate returns the estimatesmartfee rate in satoshis per kilobyte,
// or 0 when the node has no estimate yet.
func (j *JSONRPCBackend) EstimateFeeRate(ctx context.Context, targetBlocks int) (int64, error) {
	result, err := j.call(ctx, "estimatesmartfee", []interface{}{targetBlocks})
	if err != nil {
		return 0, fmt.Errorf("estimatesmartfee failed: %w", err)
	}

	var feeResult struct {
		FeeRate float64 `json:"feerate"`
	}
	if err := json.Unmarshal(result, &feeResult); err != nil {
		return 0, fmt.Errorf("failed to parse estimatesmartfee result: %w", err)
	}

	if feeResult.FeeRate <= 0 {
		return 0, nil
	}
	return int64(feeResult.FeeRate * 1e8), nil
}

// GetBlockHeight returns the current block height.
func (j *JSONRPCBackend) GetBlockHeight(ctx context.Context) (int64, error) {
	result, err := j.call(ctx, "getblockcount", []interface{}{})
	if err != nil {
		return 0, err
	}

	var height int64
	if err := json.Unmarshal(result, &height); err != nil {
		return 0, err
	}

	return height, nil
}

// BroadcastTransaction submits a raw transaction and returns its txid.
func (j *JSONRPCBackend) BroadcastTransaction(ctx context.Context, rawTxHex string) (string, error) {
	result, err := j.call(ctx, "sendrawtransaction", []interface{}{rawTxHex})
	if err != nil {
		return "", fmt.Errorf("broadcast failed: %w", err)
	}

	var txID string
	if err := json.Unmarshal(result, &txID); err != nil {
		return "", err
	}

	return txID, nil
}

func (j *JSONRPCBackend) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	id := j.requestID.Add(1)

	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}

	data, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", j.rpcURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	if j.rpcUser != "" {
		req.SetBasicAuth(j.rpcUser, j.rpcPass)
	}

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var response struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      uint64          `json:"id"`
		Result  json.RawMessage `json:"result"`
		Error   *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if response.Error != nil {
		return nil, fmt.Errorf("RPC error %d: %s", response.Error.Code, response.Error.Message)
	}

	return response.Result, nil
}

var (
	_ OutputSource = (*JSONRPCBackend)(nil)
	_ FeeEstimator = (*JSONRPCBackend)(nil)
)
