package btc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/seigneur/takefi-sub000/pkg/swap"
)

// client implements Client against an esplora / mempool.space compatible
// HTTP API. testmempoolaccept goes to a bitcoind JSON-RPC endpoint when one
// is configured.
type client struct {
	baseURL    string
	nodeRPCURL string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient returns a Client for the explorer at baseURL. nodeRPCURL may be
// empty, in which case TestMempoolAccept returns ErrNoNodeRPC.
func NewClient(baseURL, nodeRPCURL string, logger *zap.Logger) Client {
	return &client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		nodeRPCURL: nodeRPCURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (c *client) GetBalance(ctx context.Context, address btcutil.Address) (int64, error) {
	var result struct {
		ChainStats struct {
			FundedTxoSum int64 `json:"funded_txo_sum"`
			SpentTxoSum  int64 `json:"spent_txo_sum"`
		} `json:"chain_stats"`
	}
	if err := c.get(ctx, "/address/"+address.EncodeAddress(), &result); err != nil {
		return 0, err
	}
	return result.ChainStats.FundedTxoSum - result.ChainStats.SpentTxoSum, nil
}

func (c *client) GetUTXOs(ctx context.Context, address btcutil.Address) ([]UTXO, error) {
	var result []struct {
		TxID   string `json:"txid"`
		Vout   uint32 `json:"vout"`
		Value  int64  `json:"value"`
		Status struct {
			Confirmed   bool   `json:"confirmed"`
			BlockHeight uint64 `json:"block_height"`
		} `json:"status"`
	}
	if err := c.get(ctx, "/address/"+address.EncodeAddress()+"/utxo", &result); err != nil {
		return nil, err
	}

	tip, err := c.GetTipBlockHeight(ctx)
	if err != nil {
		// The utxo set is still usable without exact confirmation counts.
		tip = 0
	}

	utxos := make([]UTXO, len(result))
	for i, u := range result {
		utxo := UTXO{
			TxID:        u.TxID,
			Vout:        u.Vout,
			Amount:      u.Value,
			Confirmed:   u.Status.Confirmed,
			BlockHeight: u.Status.BlockHeight,
		}
		if u.Status.Confirmed && tip >= u.Status.BlockHeight && u.Status.BlockHeight > 0 {
			utxo.Confirmations = tip - u.Status.BlockHeight + 1
		}
		utxos[i] = utxo
	}
	return utxos, nil
}

func (c *client) GetAddressTxs(ctx context.Context, address btcutil.Address) ([]Transaction, error) {
	var txs []Transaction
	if err := c.get(ctx, "/address/"+address.EncodeAddress()+"/txs", &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

func (c *client) GetTx(ctx context.Context, txid string) (Transaction, error) {
	var tx Transaction
	if err := c.get(ctx, "/tx/"+txid, &tx); err != nil {
		return Transaction{}, err
	}
	if tx.TxID == "" {
		return Transaction{}, ErrTxNotFound
	}
	return tx, nil
}

func (c *client) GetTipBlockHeight(ctx context.Context) (uint64, error) {
	body, err := c.getRaw(ctx, "/blocks/tip/height")
	if err != nil {
		return 0, err
	}
	height, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, swap.ChainRPCError(err, "malformed tip height %q", string(body))
	}
	return height, nil
}

func (c *client) SubmitTx(ctx context.Context, tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("failed to serialize tx: %w", err)
	}
	rawHex := hex.EncodeToString(buf.Bytes())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tx", strings.NewReader(rawHex))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", swap.ChainRPCError(err, "failed to broadcast tx")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", swap.ChainRPCError(nil, "broadcast rejected (%v): %v", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return strings.TrimSpace(string(body)), nil
}

func (c *client) TestMempoolAccept(ctx context.Context, rawTxHex string) (MempoolAcceptResult, error) {
	if c.nodeRPCURL == "" {
		return MempoolAcceptResult{}, ErrNoNodeRPC
	}

	var results []struct {
		TxID         string `json:"txid"`
		Allowed      bool   `json:"allowed"`
		RejectReason string `json:"reject-reason"`
	}
	if err := c.nodeCall(ctx, "testmempoolaccept", []interface{}{[]string{rawTxHex}}, &results); err != nil {
		return MempoolAcceptResult{}, err
	}
	if len(results) == 0 {
		return MempoolAcceptResult{}, swap.ChainRPCError(nil, "testmempoolaccept returned no results")
	}
	return MempoolAcceptResult{
		Allowed:      results[0].Allowed,
		RejectReason: results[0].RejectReason,
	}, nil
}

func (c *client) FeeSuggestion(ctx context.Context) (FeeSuggestion, error) {
	var estimates map[string]float64
	if err := c.get(ctx, "/fee-estimates", &estimates); err != nil {
		return FeeSuggestion{}, err
	}

	tier := func(target string, fallback int) int {
		if v, ok := estimates[target]; ok && v >= 1 {
			return int(v)
		}
		return fallback
	}
	return FeeSuggestion{
		Minimum: 1,
		Economy: tier("144", 1),
		Low:     tier("6", 2),
		Medium:  tier("3", 4),
		High:    tier("1", 8),
	}, nil
}

func (c *client) get(ctx context.Context, endpoint string, result interface{}) error {
	body, err := c.getRaw(ctx, endpoint)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return swap.ChainRPCError(err, "malformed response from %v", endpoint)
	}
	return nil
}

func (c *client) getRaw(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, swap.ChainRPCError(err, "request to %v failed", endpoint)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, swap.ChainRPCError(err, "failed to read response from %v", endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, swap.ChainRPCError(nil, "%v returned status %v: %v", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *client) nodeCall(ctx context.Context, method string, params []interface{}, result interface{}) error {
	payload, err := json.Marshal(rpcRequest{JSONRPC: "1.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.nodeRPCURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return swap.ChainRPCError(err, "node rpc %v failed", method)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return swap.ChainRPCError(err, "malformed node rpc response for %v", method)
	}
	if rpcResp.Error != nil {
		return swap.ChainRPCError(nil, "node rpc %v: %v (%v)", method, rpcResp.Error.Message, rpcResp.Error.Code)
	}
	return json.Unmarshal(rpcResp.Result, result)
}
