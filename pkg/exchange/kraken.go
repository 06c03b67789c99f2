package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultBaseURL is the Kraken Futures v3 REST root.
	DefaultBaseURL = "https://futures.kraken.com/derivatives/api/v3"
	// DefaultSpotBaseURL serves the public OHLC endpoint.
	DefaultSpotBaseURL = "https://api.kraken.com"

	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 8 << 20
)

// KrakenConfig configures a KrakenClient.
type KrakenConfig struct {
	BaseURL     string
	SpotBaseURL string
	APIKey      string
	// APISecret is the base64 secret issued by Kraken.
	APISecret  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// KrakenClient implements Client against the Kraken Futures REST API.
// Private endpoints are signed with HMAC-SHA512 as Kraken documents.
type KrakenClient struct {
	baseURL     string
	spotBaseURL string
	apiKey      string
	secret      []byte
	httpClient  *http.Client
	logger      zerolog.Logger

	mu        sync.Mutex
	lastNonce int64
	now       func() time.Time
}

// NewKrakenClient validates cfg and returns a client.
func NewKrakenClient(cfg KrakenConfig) (*KrakenClient, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("kraken api key and secret are required")
	}
	secret, err := base64.StdEncoding.DecodeString(cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("kraken api secret is not valid base64: %w", err)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	spotBaseURL := strings.TrimRight(cfg.SpotBaseURL, "/")
	if spotBaseURL == "" {
		spotBaseURL = DefaultSpotBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &KrakenClient{
		baseURL:     baseURL,
		spotBaseURL: spotBaseURL,
		apiKey:      cfg.APIKey,
		secret:      secret,
		httpClient:  httpClient,
		logger:      cfg.Logger.With().Str("component", "exchange").Logger(),
		now:         time.Now,
	}, nil
}

func (c *KrakenClient) GetInstruments(ctx context.Context) (Payload, error) {
	return c.public(ctx, "/instruments", nil)
}

func (c *KrakenClient) GetTickers(ctx context.Context) (Payload, error) {
	return c.public(ctx, "/tickers", nil)
}

func (c *KrakenClient) GetOrderbook(ctx context.Context, symbol string) (Payload, error) {
	return c.public(ctx, "/orderbook", query("symbol", symbol))
}

func (c *KrakenClient) GetHistory(ctx context.Context, symbol, lastTime string) (Payload, error) {
	return c.public(ctx, "/history", query("symbol", symbol, "lastTime", lastTime))
}

func (c *KrakenClient) GetNotifications(ctx context.Context) (Payload, error) {
	return c.private(ctx, http.MethodGet, "/notifications", nil)
}

func (c *KrakenClient) GetAccounts(ctx context.Context) (Payload, error) {
	return c.private(ctx, http.MethodGet, "/accounts", nil)
}

func (c *KrakenClient) GetAccountLog(ctx context.Context) (Payload, error) {
	return c.private(ctx, http.MethodGet, "/accountlog", nil)
}

func (c *KrakenClient) GetOpenPositions(ctx context.Context) (Payload, error) {
	return c.private(ctx, http.MethodGet, "/openpositions", nil)
}

func (c *KrakenClient) GetOpenOrders(ctx context.Context) (Payload, error) {
	return c.private(ctx, http.MethodGet, "/openorders", nil)
}

func (c *KrakenClient) GetRecentOrders(ctx context.Context, symbol string) (Payload, error) {
	return c.private(ctx, http.MethodGet, "/recentorders", query("symbol", symbol))
}

func (c *KrakenClient) GetFills(ctx context.Context, lastTime string) (Payload, error) {
	return c.private(ctx, http.MethodGet, "/fills", query("lastFillTime", lastTime))
}

func (c *KrakenClient) GetTransfers(ctx context.Context, lastTime string) (Payload, error) {
	return c.private(ctx, http.MethodGet, "/transfers", query("lastTransferTime", lastTime))
}

// GetHistoricalPriceData reads OHLC candles from the Kraken spot API.
func (c *KrakenClient) GetHistoricalPriceData(ctx context.Context, pair string, interval int, since int64) (Payload, error) {
	params := url.Values{}
	params.Set("pair", pair)
	params.Set("interval", strconv.Itoa(interval))
	params.Set("since", strconv.FormatInt(since, 10))

	const endpoint = "/0/public/OHLC"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.spotBaseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &Error{Endpoint: endpoint, Message: err.Error()}
	}

	payload, err := c.do(req, endpoint)
	if err != nil {
		return nil, err
	}

	// the spot API reports failures in an error array with status 200
	if errs, ok := payload["error"].([]interface{}); ok && len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, fmt.Sprint(e))
		}
		return nil, &Error{Status: http.StatusOK, Endpoint: endpoint, Message: strings.Join(msgs, "; ")}
	}
	return payload, nil
}

func (c *KrakenClient) SendOrder(ctx context.Context, order OrderRequest) (Payload, error) {
	form := url.Values{}
	form.Set("orderType", order.OrderType)
	form.Set("symbol", order.Symbol)
	form.Set("side", order.Side)
	form.Set("size", formatFloat(order.Size))
	if order.LimitPrice != nil {
		form.Set("limitPrice", formatFloat(*order.LimitPrice))
	}
	if order.StopPrice != nil {
		form.Set("stopPrice", formatFloat(*order.StopPrice))
	}
	if order.ReduceOnly {
		form.Set("reduceOnly", "true")
	}
	return c.private(ctx, http.MethodPost, "/sendorder", form)
}

func (c *KrakenClient) EditOrder(ctx context.Context, edit EditRequest) (Payload, error) {
	form := url.Values{}
	form.Set("orderId", edit.OrderID)
	form.Set("size", formatFloat(edit.Size))
	form.Set("limitPrice", formatFloat(edit.LimitPrice))
	return c.private(ctx, http.MethodPost, "/editorder", form)
}

func (c *KrakenClient) CancelOrder(ctx context.Context, orderID string) (Payload, error) {
	return c.private(ctx, http.MethodPost, "/cancelorder", query("order_id", orderID))
}

func (c *KrakenClient) CancelAllOrders(ctx context.Context, symbol string) (Payload, error) {
	return c.private(ctx, http.MethodPost, "/cancelallorders", query("symbol", symbol))
}

func (c *KrakenClient) CancelAllOrdersAfter(ctx context.Context, timeoutSeconds int) (Payload, error) {
	return c.private(ctx, http.MethodPost, "/cancelallordersafter", query("timeout", strconv.Itoa(timeoutSeconds)))
}

func (c *KrakenClient) BatchOrder(ctx context.Context, batchJSON string) (Payload, error) {
	return c.private(ctx, http.MethodPost, "/batchorder", query("json", batchJSON))
}

func (c *KrakenClient) public(ctx context.Context, endpoint string, params url.Values) (Payload, error) {
	target := c.baseURL + endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &Error{Endpoint: endpoint, Message: err.Error()}
	}
	return c.do(req, endpoint)
}

// private signs and sends a request. GET parameters go in the query string,
// POST parameters in a form body; either way the encoded parameters are the
// postData that is signed.
func (c *KrakenClient) private(ctx context.Context, method, endpoint string, params url.Values) (Payload, error) {
	postData := params.Encode()
	target := c.baseURL + endpoint

	var body io.Reader
	if method == http.MethodGet {
		if postData != "" {
			target += "?" + postData
		}
	} else {
		body = strings.NewReader(postData)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &Error{Endpoint: endpoint, Message: err.Error()}
	}

	nonce := c.nextNonce()
	req.Header.Set("APIKey", c.apiKey)
	req.Header.Set("Nonce", nonce)
	req.Header.Set("Authent", c.sign(signingPath(req.URL.Path), postData, nonce))
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	return c.do(req, endpoint)
}

func (c *KrakenClient) do(req *http.Request, endpoint string) (Payload, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Endpoint: endpoint, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{Status: resp.StatusCode, Endpoint: endpoint, Message: fmt.Sprintf("failed to read response: %v", err)}
	}

	c.logger.Debug().
		Str("method", req.Method).
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Exchange request")

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &Error{Status: resp.StatusCode, Endpoint: endpoint, Message: errorMessage(data, resp.Status)}
	}

	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, &Error{Status: resp.StatusCode, Endpoint: endpoint, Message: fmt.Sprintf("invalid JSON response: %v", err)}
	}

	payload, ok := v.(map[string]interface{})
	if !ok {
		return Payload{"data": v}, nil
	}

	// futures endpoints report failures as result "error" with status 200
	if result, _ := payload["result"].(string); result == "error" {
		msg, _ := payload["error"].(string)
		if msg == "" {
			msg = "request rejected"
		}
		return nil, &Error{Status: resp.StatusCode, Endpoint: endpoint, Message: msg}
	}
	return Payload(payload), nil
}

// sign computes Authent: base64(HMAC-SHA512(secret, SHA256(postData + nonce + path))).
func (c *KrakenClient) sign(path, postData, nonce string) string {
	digest := sha256.Sum256([]byte(postData + nonce + path))
	mac := hmac.New(sha512.New, c.secret)
	mac.Write(digest[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// nextNonce returns a strictly increasing millisecond-based nonce.
func (c *KrakenClient) nextNonce() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.now().UnixMilli()
	if n <= c.lastNonce {
		n = c.lastNonce + 1
	}
	c.lastNonce = n
	return strconv.FormatInt(n, 10)
}

// signingPath drops the /derivatives prefix; Kraken signs /api/v3/...
func signingPath(path string) string {
	return strings.TrimPrefix(path, "/derivatives")
}

func errorMessage(data []byte, status string) string {
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return body.Error
	}
	if text := strings.TrimSpace(string(data)); text != "" {
		return text
	}
	return status
}

// query builds url.Values from key/value pairs, skipping empty values.
func query(kv ...string) url.Values {
	v := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			v.Set(kv[i], kv[i+1])
		}
	}
	return v
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
