package mock

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/seigneur/takefi-sub000/pkg/btc"
)

type ChainClient struct {
	FuncGetBalance        func(context.Context, btcutil.Address) (int64, error)
	FuncGetUTXOs          func(context.Context, btcutil.Address) ([]btc.UTXO, error)
	FuncGetAddressTxs     func(context.Context, btcutil.Address) ([]btc.Transaction, error)
	FuncGetTx             func(context.Context, string) (btc.Transaction, error)
	FuncGetTipBlockHeight func(context.Context) (uint64, error)
	FuncSubmitTx          func(context.Context, *wire.MsgTx) (string, error)
	FuncTestMempoolAccept func(context.Context, string) (btc.MempoolAcceptResult, error)
	FuncFeeSuggestion     func(context.Context) (btc.FeeSuggestion, error)
}

func NewChainClient() *ChainClient {
	return &ChainClient{}
}

func (c *ChainClient) GetBalance(ctx context.Context, address btcutil.Address) (int64, error) {
	if c.FuncGetBalance != nil {
		return c.FuncGetBalance(ctx, address)
	}
	return 0, nil
}

func (c *ChainClient) GetUTXOs(ctx context.Context, address btcutil.Address) ([]btc.UTXO, error) {
	if c.FuncGetUTXOs != nil {
		return c.FuncGetUTXOs(ctx, address)
	}
	return nil, nil
}

func (c *ChainClient) GetAddressTxs(ctx context.Context, address btcutil.Address) ([]btc.Transaction, error) {
	if c.FuncGetAddressTxs != nil {
		return c.FuncGetAddressTxs(ctx, address)
	}
	return nil, nil
}

func (c *ChainClient) GetTx(ctx context.Context, txid string) (btc.Transaction, error) {
	if c.FuncGetTx != nil {
		return c.FuncGetTx(ctx, txid)
	}
	return btc.Transaction{}, btc.ErrTxNotFound
}

func (c *ChainClient) GetTipBlockHeight(ctx context.Context) (uint64, error) {
	if c.FuncGetTipBlockHeight != nil {
		return c.FuncGetTipBlockHeight(ctx)
	}
	return 0, nil
}

func (c *ChainClient) SubmitTx(ctx context.Context, tx *wire.MsgTx) (string, error) {
	if c.FuncSubmitTx != nil {
		return c.FuncSubmitTx(ctx, tx)
	}
	return tx.TxHash().String(), nil
}

func (c *ChainClient) TestMempoolAccept(ctx context.Context, rawTxHex string) (btc.MempoolAcceptResult, error) {
	if c.FuncTestMempoolAccept != nil {
		return c.FuncTestMempoolAccept(ctx, rawTxHex)
	}
	return btc.MempoolAcceptResult{Allowed: true}, nil
}

func (c *ChainClient) FeeSuggestion(ctx context.Context) (btc.FeeSuggestion, error) {
	if c.FuncFeeSuggestion != nil {
		return c.FuncFeeSuggestion(ctx)
	}
	return btc.FeeSuggestion{Minimum: 1, Economy: 1, Low: 2, Medium: 4, High: 8}, nil
}
