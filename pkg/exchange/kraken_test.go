package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = base64.StdEncoding.EncodeToString([]byte("kraken-test-secret"))

type recorded struct {
	method string
	path   string
	query  url.Values
	form   url.Values
	header http.Header
	body   string
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*KrakenClient, *[]recorded) {
	t.Helper()

	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(data))
		calls = append(calls, recorded{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.Query(),
			form:   form,
			header: r.Header.Clone(),
			body:   string(data),
		})
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewKrakenClient(KrakenConfig{
		BaseURL:     srv.URL + "/derivatives/api/v3",
		SpotBaseURL: srv.URL,
		APIKey:      "public-key",
		APISecret:   testSecret,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return c, &calls
}

func expectedAuthent(path, postData, nonce string) string {
	secret, _ := base64.StdEncoding.DecodeString(testSecret)
	digest := sha256.Sum256([]byte(postData + nonce + path))
	mac := hmac.New(sha512.New, secret)
	mac.Write(digest[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestNewKrakenClient(t *testing.T) {
	t.Run("should require credentials", func(t *testing.T) {
		_, err := NewKrakenClient(KrakenConfig{APIKey: "k"})
		assert.Error(t, err)
	})

	t.Run("should reject a secret that is not base64", func(t *testing.T) {
		_, err := NewKrakenClient(KrakenConfig{APIKey: "k", APISecret: "not base64!"})
		assert.Error(t, err)
	})

	t.Run("should default base URLs", func(t *testing.T) {
		c, err := NewKrakenClient(KrakenConfig{APIKey: "k", APISecret: testSecret})
		require.NoError(t, err)
		assert.Equal(t, DefaultBaseURL, c.baseURL)
		assert.Equal(t, DefaultSpotBaseURL, c.spotBaseURL)
	})
}

func TestKrakenPublicEndpoints(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"result":"success","tickers":[{"symbol":"PF_XBTUSD","last":50000}]}`)
	})

	t.Run("should not sign public requests", func(t *testing.T) {
		out, err := c.GetTickers(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "success", out["result"])

		last := (*calls)[len(*calls)-1]
		assert.Equal(t, "/derivatives/api/v3/tickers", last.path)
		assert.Empty(t, last.header.Get("Authent"))
	})

	t.Run("should pass filters in the query", func(t *testing.T) {
		_, err := c.GetHistory(context.Background(), "pf_xbtusd", "1700000000000")
		require.NoError(t, err)

		last := (*calls)[len(*calls)-1]
		assert.Equal(t, "/derivatives/api/v3/history", last.path)
		assert.Equal(t, "pf_xbtusd", last.query.Get("symbol"))
		assert.Equal(t, "1700000000000", last.query.Get("lastTime"))
	})

	t.Run("should skip empty filters", func(t *testing.T) {
		_, err := c.GetHistory(context.Background(), "pf_xbtusd", "")
		require.NoError(t, err)

		last := (*calls)[len(*calls)-1]
		_, present := last.query["lastTime"]
		assert.False(t, present)
	})

	t.Run("should return equal payloads for repeated reads", func(t *testing.T) {
		first, err := c.GetOrderbook(context.Background(), "pf_ethusd")
		require.NoError(t, err)
		second, err := c.GetOrderbook(context.Background(), "pf_ethusd")
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestKrakenSigning(t *testing.T) {
	t.Run("should sign GET requests over the query string", func(t *testing.T) {
		c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"result":"success","fills":[]}`)
		})

		_, err := c.GetFills(context.Background(), "2024-01-01T00:00:00Z")
		require.NoError(t, err)

		last := (*calls)[0]
		assert.Equal(t, http.MethodGet, last.method)
		assert.Equal(t, "public-key", last.header.Get("APIKey"))
		assert.Equal(t, "1700000000000", last.header.Get("Nonce"))

		postData := url.Values{"lastFillTime": {"2024-01-01T00:00:00Z"}}.Encode()
		assert.Equal(t, expectedAuthent("/api/v3/fills", postData, "1700000000000"), last.header.Get("Authent"))
	})

	t.Run("should sign POST requests over the form body", func(t *testing.T) {
		c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"result":"success","sendStatus":{"order_id":"abc-123","status":"placed"}}`)
		})

		limit := 50000.5
		out, err := c.SendOrder(context.Background(), OrderRequest{
			OrderType:  "lmt",
			Symbol:     "pf_xbtusd",
			Side:       "buy",
			Size:       1,
			LimitPrice: &limit,
		})
		require.NoError(t, err)
		assert.Equal(t, "abc-123", out["sendStatus"].(map[string]interface{})["order_id"])

		last := (*calls)[0]
		assert.Equal(t, http.MethodPost, last.method)
		assert.Equal(t, "/derivatives/api/v3/sendorder", last.path)
		assert.Equal(t, "application/x-www-form-urlencoded", last.header.Get("Content-Type"))
		assert.Equal(t, "lmt", last.form.Get("orderType"))
		assert.Equal(t, "1", last.form.Get("size"))
		assert.Equal(t, "50000.5", last.form.Get("limitPrice"))
		assert.Empty(t, last.form.Get("stopPrice"))
		assert.Equal(t, expectedAuthent("/api/v3/sendorder", last.body, last.header.Get("Nonce")), last.header.Get("Authent"))
	})

	t.Run("should issue strictly increasing nonces", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

		first := c.nextNonce()
		second := c.nextNonce()
		assert.Equal(t, "1700000000000", first)
		assert.Equal(t, "1700000000001", second)
	})
}

func TestKrakenOrderEndpoints(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"result":"success"}`)
	})
	ctx := context.Background()

	_, err := c.EditOrder(ctx, EditRequest{OrderID: "o-1", Size: 2, LimitPrice: 10001})
	require.NoError(t, err)
	_, err = c.CancelOrder(ctx, "o-1")
	require.NoError(t, err)
	_, err = c.CancelAllOrders(ctx, "pf_xbtusd")
	require.NoError(t, err)
	_, err = c.CancelAllOrdersAfter(ctx, 60)
	require.NoError(t, err)
	_, err = c.BatchOrder(ctx, `{"batchOrder":[]}`)
	require.NoError(t, err)

	require.Len(t, *calls, 5)
	assert.Equal(t, "/derivatives/api/v3/editorder", (*calls)[0].path)
	assert.Equal(t, "o-1", (*calls)[0].form.Get("orderId"))
	assert.Equal(t, "o-1", (*calls)[1].form.Get("order_id"))
	assert.Equal(t, "pf_xbtusd", (*calls)[2].form.Get("symbol"))
	assert.Equal(t, "60", (*calls)[3].form.Get("timeout"))
	assert.Equal(t, `{"batchOrder":[]}`, (*calls)[4].form.Get("json"))
}

func TestKrakenErrors(t *testing.T) {
	t.Run("should surface HTTP failures as exchange errors", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"result":"error","error":"authenticationError"}`)
		})

		_, err := c.GetOpenPositions(context.Background())
		var exErr *Error
		require.True(t, errors.As(err, &exErr))
		assert.Equal(t, http.StatusUnauthorized, exErr.Status)
		assert.Equal(t, "authenticationError", exErr.Message)
		assert.Equal(t, "/openpositions", exErr.Endpoint)
	})

	t.Run("should surface result error with status 200", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"result":"error","error":"insufficientAvailableFunds"}`)
		})

		_, err := c.SendOrder(context.Background(), OrderRequest{OrderType: "mkt", Symbol: "pf_xbtusd", Side: "buy", Size: 1})
		var exErr *Error
		require.True(t, errors.As(err, &exErr))
		assert.Equal(t, "insufficientAvailableFunds", exErr.Message)
	})

	t.Run("should report invalid JSON", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `<html>`)
		})

		_, err := c.GetInstruments(context.Background())
		var exErr *Error
		assert.True(t, errors.As(err, &exErr))
	})

	t.Run("should report transport failures without a status", func(t *testing.T) {
		c, err := NewKrakenClient(KrakenConfig{BaseURL: "http://127.0.0.1:1", APIKey: "k", APISecret: testSecret, Timeout: time.Second})
		require.NoError(t, err)

		_, err = c.GetTickers(context.Background())
		var exErr *Error
		require.True(t, errors.As(err, &exErr))
		assert.Equal(t, 0, exErr.Status)
	})
}

func TestKrakenHistoricalPriceData(t *testing.T) {
	t.Run("should query the spot OHLC endpoint", func(t *testing.T) {
		c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"error":[],"result":{"XXBTZUSD":[[1700000000,"50000","50100","49900","50050","50020","12.5",42]],"last":1700003600}}`)
		})

		out, err := c.GetHistoricalPriceData(context.Background(), "XBTUSD", 60, 1700000000)
		require.NoError(t, err)
		assert.Contains(t, out["result"], "XXBTZUSD")

		last := (*calls)[0]
		assert.Equal(t, "/0/public/OHLC", last.path)
		assert.Equal(t, "XBTUSD", last.query.Get("pair"))
		assert.Equal(t, "60", last.query.Get("interval"))
		assert.Equal(t, "1700000000", last.query.Get("since"))
		assert.Empty(t, last.header.Get("APIKey"))
	})

	t.Run("should turn spot error arrays into exchange errors", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"error":["EQuery:Unknown asset pair"]}`)
		})

		_, err := c.GetHistoricalPriceData(context.Background(), "NOPE", 60, 0)
		var exErr *Error
		require.True(t, errors.As(err, &exErr))
		assert.Equal(t, "EQuery:Unknown asset pair", exErr.Message)
	})
}

func TestAvailableMargin(t *testing.T) {
	t.Run("should return the flex account", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"result":"success","accounts":{"flex":{"type":"multiCollateralMarginAccount","availableMargin":1234.5}}}`)
		})

		out, err := AvailableMargin(context.Background(), c)
		require.NoError(t, err)
		assert.Equal(t, 1234.5, out["availableMargin"])
	})

	t.Run("should fail without a flex account", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"result":"success","accounts":{"cash":{}}}`)
		})

		_, err := AvailableMargin(context.Background(), c)
		var exErr *Error
		require.True(t, errors.As(err, &exErr))
		assert.Contains(t, exErr.Error(), "flex")
	})
}
