package venue

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/seigneur/takefi-sub000/pkg/swap"
)

// Client is the order venue consumed by the orchestrator. Implementations
// must be safe for concurrent use.
type Client interface {
	GetQuote(ctx context.Context, req QuoteRequest) (Quote, error)

	// SubmitOrder sends a signed order and returns the venue's opaque
	// order identifier.
	SubmitOrder(ctx context.Context, order Order) (string, error)

	GetOrderStatus(ctx context.Context, orderID string) (OrderState, error)

	CancelOrder(ctx context.Context, orderID string) error

	// WSEndpoint returns the venue's push endpoint, empty when the venue
	// only supports polling.
	WSEndpoint() string
}

type client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
}

// NewClient returns a venue client for the REST API at baseURL. wsURL may be
// empty when the venue offers no push channel.
func NewClient(baseURL, wsURL string) Client {
	return &client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		wsURL:      wsURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *client) GetQuote(ctx context.Context, req QuoteRequest) (Quote, error) {
	var response struct {
		Quote Quote `json:"quote"`
	}
	if err := c.post(ctx, "/quote", req, &response); err != nil {
		return Quote{}, err
	}
	return response.Quote, nil
}

func (c *client) SubmitOrder(ctx context.Context, order Order) (string, error) {
	if err := order.Validate(); err != nil {
		return "", err
	}
	var orderID string
	if err := c.post(ctx, "/orders", order, &orderID); err != nil {
		return "", err
	}
	if orderID == "" {
		return "", swap.VenueError(nil, "venue returned an empty order id")
	}
	return orderID, nil
}

func (c *client) GetOrderStatus(ctx context.Context, orderID string) (OrderState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/orders/"+orderID, nil)
	if err != nil {
		return OrderState{}, err
	}
	var state OrderState
	if err := c.do(req, &state); err != nil {
		return OrderState{}, err
	}
	return state, nil
}

func (c *client) CancelOrder(ctx context.Context, orderID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/orders/"+orderID, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *client) WSEndpoint() string {
	return c.wsURL
}

func (c *client) post(ctx context.Context, endpoint string, payload, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, result)
}

func (c *client) do(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return swap.VenueError(err, "venue request %v failed", req.URL.Path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return swap.VenueError(err, "failed to read venue response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return swap.VenueError(nil, "venue %v returned %v: %v", req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return swap.VenueError(err, "malformed venue response from %v", req.URL.Path)
	}
	return nil
}

// SignOrder signs the order digest with the ethsign scheme and stamps the
// signature and signer onto the order.
func SignOrder(order Order, key *ecdsa.PrivateKey) (Order, error) {
	digest := OrderDigest(order)
	sig, err := crypto.Sign(accounts.TextHash(digest), key)
	if err != nil {
		return Order{}, fmt.Errorf("failed to sign order: %w", err)
	}
	// Shift the recovery id to the 27/28 convention expected on the wire.
	sig[64] += 27

	order.SigningScheme = SchemeEthSign
	order.Signature = hexutil.Encode(sig)
	order.From = crypto.PubkeyToAddress(key.PublicKey)
	return order, nil
}

// OrderDigest is a deterministic packing of the economically meaningful
// order fields. Both sides of the integration derive the same bytes.
func OrderDigest(order Order) []byte {
	packed := fmt.Sprintf("%v|%v|%v|%v|%v|%v|%v|%v",
		order.SellToken.Hex(), order.BuyToken.Hex(), order.Receiver.Hex(),
		order.SellAmount, order.BuyAmount, order.FeeAmount, order.ValidTo, order.Kind)
	return crypto.Keccak256([]byte(packed))
}
