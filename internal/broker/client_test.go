package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/st0x-bridge/equity-bridge/internal/bridgeerr"
	"github.com/st0x-bridge/equity-bridge/internal/domain"
)

func restyClientFor(baseURL string) *resty.Client {
	return resty.New().SetBaseURL(baseURL)
}

func TestPlaceOrderParsesOrderIDFromLocationHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/trader/v1/accounts/acct-1/orders", r.URL.Path)
		require.Equal(t, "Bearer access-token", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "MARKET", body["orderType"])

		w.Header().Set("Location", "https://broker.example/trader/v1/accounts/acct-1/orders/998877")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "secret", "acct-1")

	orderID, err := client.PlaceOrder(context.Background(), "access-token", domain.BrokerExecution{
		ID: 1, Symbol: "AAPL", Shares: 2, Direction: domain.Buy, Status: domain.Pending,
	})
	require.NoError(t, err)
	require.Equal(t, "998877", orderID)
}

func TestPlaceOrderUsesSellInstructionForSellDirection(t *testing.T) {
	var gotInstruction string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body orderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotInstruction = body.OrderLegCollection[0].Instruction
		w.Header().Set("Location", "/trader/v1/accounts/acct-1/orders/1")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "secret", "acct-1")
	_, err := client.PlaceOrder(context.Background(), "access-token", domain.BrokerExecution{
		ID: 1, Symbol: "AAPL", Shares: 1, Direction: domain.Sell, Status: domain.Pending,
	})
	require.NoError(t, err)
	require.Equal(t, "SELL", gotInstruction)
}

func TestPlaceOrderClassifiesA4xxResponseAsTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "secret", "acct-1")
	_, err := client.PlaceOrder(context.Background(), "access-token", domain.BrokerExecution{
		ID: 1, Symbol: "AAPL", Shares: 1, Direction: domain.Buy, Status: domain.Pending,
	})
	require.Error(t, err)
	require.ErrorIs(t, err, bridgeerr.ErrBrokerTerminal)
}

func TestPlaceOrderClassifiesA5xxResponseAsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "secret", "acct-1")
	_, err := client.PlaceOrder(context.Background(), "access-token", domain.BrokerExecution{
		ID: 1, Symbol: "AAPL", Shares: 1, Direction: domain.Buy, Status: domain.Pending,
	})
	require.Error(t, err)
	require.False(t, errors.Is(err, bridgeerr.ErrBrokerTerminal), "5xx must stay retryable, not terminal")
}

func TestGetOrderStatusDecodesExecutionLegs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/trader/v1/accounts/acct-1/orders/998877", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"orderId": 998877,
			"status": "FILLED",
			"filledQuantity": 2,
			"remainingQuantity": 0,
			"orderActivityCollection": [{
				"executionLegs": [{"legId": 1, "quantity": 2, "price": 190.5, "time": "2026-07-31T14:00:00Z"}]
			}]
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "secret", "acct-1")
	status, err := client.GetOrderStatus(context.Background(), "access-token", "998877")
	require.NoError(t, err)
	require.Equal(t, StatusFilled, status.Status)
	require.Len(t, status.ExecutionLegs, 1)
	require.True(t, status.ExecutionLegs[0].Price.Equal(decimal.NewFromFloat(190.5)))
}

func TestFetchAccountHashSelectsConfiguredIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer access-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"accountNumber":"111","hashValue":"hash-a"},{"accountNumber":"222","hashValue":"hash-b"}]`))
	}))
	defer server.Close()

	httpClient := restyClientFor(server.URL)
	hash, err := FetchAccountHash(context.Background(), httpClient, "access-token", 1)
	require.NoError(t, err)
	require.Equal(t, "hash-b", hash)
}

func TestFetchAccountHashFailsOnOutOfRangeIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"accountNumber":"111","hashValue":"hash-a"}]`))
	}))
	defer server.Close()

	httpClient := restyClientFor(server.URL)
	_, err := FetchAccountHash(context.Background(), httpClient, "access-token", 5)
	require.Error(t, err)
}
