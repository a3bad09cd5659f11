package broker

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	"github.com/st0x-bridge/equity-bridge/internal/bridgeerr"
	"github.com/st0x-bridge/equity-bridge/internal/domain"
)

// Client is a Broker backed by a resty HTTP client, wrapped in a
// circuit breaker so a broker outage fails fast instead of piling up
// blocked queue-processor iterations.
type Client struct {
	http         *resty.Client
	appKey       string
	appSecret    string
	accountHash  string
	breaker      *gobreaker.CircuitBreaker[*resty.Response]
}

// NewClient builds a broker Client against baseURL. appKey/appSecret
// authenticate the basic-auth token calls; order placement and status
// calls use the bearer access token passed to each call.
// accountHash identifies the brokerage account orders are placed
// against (resolved once at startup via FetchAccountHash).
func NewClient(baseURL, appKey, appSecret, accountHash string) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second)

	settings := gobreaker.Settings{
		Name:        "broker",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &Client{
		http:        http,
		appKey:      appKey,
		appSecret:   appSecret,
		accountHash: accountHash,
		breaker:     gobreaker.NewCircuitBreaker[*resty.Response](settings),
	}
}

// basicAuthHeader builds the HTTP Basic credential for client-credential
// token calls (token exchange and refresh), per the brokerage's OAuth2
// client-secret-basic scheme.
func (c *Client) basicAuthHeader() string {
	raw := c.appKey + ":" + c.appSecret
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

// ExchangeAuthCode trades a one-time OAuth authorization code for an
// access/refresh token pair.
func (c *Client) ExchangeAuthCode(ctx context.Context, code, redirectURI string) (domain.TokenRecord, error) {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
	}
	return c.requestTokens(ctx, form)
}

// RefreshTokens trades a refresh token for a fresh access/refresh pair.
func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (domain.TokenRecord, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	return c.requestTokens(ctx, form)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (c *Client) requestTokens(ctx context.Context, form url.Values) (domain.TokenRecord, error) {
	var body tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", c.basicAuthHeader()).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(form.Encode()).
		SetResult(&body).
		Post("/v1/oauth/token")
	if err != nil {
		return domain.TokenRecord{}, fmt.Errorf("oauth token request: %w", err)
	}
	if resp.IsError() {
		return domain.TokenRecord{}, fmt.Errorf("oauth token request failed: %s", resp.Status())
	}

	now := time.Now()
	return domain.TokenRecord{
		AccessToken:      body.AccessToken,
		AccessFetchedAt:  now,
		RefreshToken:     body.RefreshToken,
		RefreshFetchedAt: now,
	}, nil
}

// FetchAccountHash resolves the operator's brokerage account hash,
// selecting accountIndex from the list the API returns.
func FetchAccountHash(ctx context.Context, http *resty.Client, accessToken string, accountIndex int) (string, error) {
	var accounts []struct {
		AccountNumber string `json:"accountNumber"`
		HashValue     string `json:"hashValue"`
	}
	resp, err := http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+accessToken).
		SetHeader("Accept", "application/json").
		SetResult(&accounts).
		Get("/trader/v1/accounts/accountNumbers")
	if err != nil {
		return "", fmt.Errorf("fetch account numbers: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("fetch account numbers failed: %s", resp.Status())
	}
	if len(accounts) == 0 {
		return "", fmt.Errorf("%w: brokerage account returned no linked accounts", bridgeerr.ErrDataShapeViolation)
	}
	if accountIndex >= len(accounts) {
		return "", fmt.Errorf("%w: account index %d out of range (%d accounts)", bridgeerr.ErrDataShapeViolation, accountIndex, len(accounts))
	}
	return accounts[accountIndex].HashValue, nil
}

type orderRequest struct {
	OrderType  string             `json:"orderType"`
	Session    string             `json:"session"`
	Duration   string             `json:"duration"`
	OrderStrategyType string      `json:"orderStrategyType"`
	OrderLegCollection []orderLeg `json:"orderLegCollection"`
}

type orderLeg struct {
	Instruction string         `json:"instruction"`
	Quantity    int64          `json:"quantity"`
	Instrument  orderInstrument `json:"instrument"`
}

type orderInstrument struct {
	Symbol    string `json:"symbol"`
	AssetType string `json:"assetType"`
}

// PlaceOrder submits a market order for execution and returns the
// brokerage's order id, parsed out of the Location response header per
// the brokerage API's order-creation convention.
func (c *Client) PlaceOrder(ctx context.Context, accessToken string, execution domain.BrokerExecution) (string, error) {
	instruction := "BUY"
	if execution.Direction == domain.Sell {
		instruction = "SELL"
	}

	body := orderRequest{
		OrderType:         "MARKET",
		Session:           "NORMAL",
		Duration:          "DAY",
		OrderStrategyType: "SINGLE",
		OrderLegCollection: []orderLeg{{
			Instruction: instruction,
			Quantity:    execution.Shares,
			Instrument:  orderInstrument{Symbol: execution.Symbol, AssetType: "EQUITY"},
		}},
	}

	result, err := c.breaker.Execute(func() (*resty.Response, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("Authorization", "Bearer "+accessToken).
			SetHeader("Content-Type", "application/json").
			SetBody(body).
			Post(fmt.Sprintf("/trader/v1/accounts/%s/orders", c.accountHash))
		if err != nil {
			return resp, err
		}
		if resp.IsError() {
			// A 4xx means the brokerage rejected the order itself (bad
			// symbol, insufficient buying power, market closed, etc.):
			// retrying the identical request will never succeed. A 5xx
			// or network-level failure is transient and worth a retry.
			if resp.StatusCode() >= 400 && resp.StatusCode() < 500 {
				return resp, fmt.Errorf("%w: place order rejected: %s", bridgeerr.ErrBrokerTerminal, resp.Status())
			}
			return resp, fmt.Errorf("place order failed: %s", resp.Status())
		}
		return resp, nil
	})
	if err != nil {
		return "", fmt.Errorf("place order for execution %d: %w", execution.ID, err)
	}

	orderID, err := orderIDFromLocation(result.Header().Get("Location"))
	if err != nil {
		return "", fmt.Errorf("place order for execution %d: %w", execution.ID, err)
	}
	return orderID, nil
}

func orderIDFromLocation(location string) (string, error) {
	parsed, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse order Location header %q: %w", location, err)
	}
	parts := splitPath(parsed.Path)
	if len(parts) == 0 {
		return "", fmt.Errorf("order Location header %q has no id segment", location)
	}
	return parts[len(parts)-1], nil
}

func splitPath(path string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			if i > start {
				parts = append(parts, path[start:i])
			}
			start = i + 1
		}
	}
	if start < len(path) {
		parts = append(parts, path[start:])
	}
	return parts
}

type orderStatusDTO struct {
	OrderID           int64             `json:"orderId"`
	Status            string            `json:"status"`
	FilledQuantity    float64           `json:"filledQuantity"`
	RemainingQuantity float64           `json:"remainingQuantity"`
	OrderActivityCollection []struct {
		ExecutionLegs []struct {
			LegID    int64   `json:"legId"`
			Quantity float64 `json:"quantity"`
			Price    float64 `json:"price"`
			Time     string  `json:"time"`
		} `json:"executionLegs"`
	} `json:"orderActivityCollection"`
}

func (c *Client) GetOrderStatus(ctx context.Context, accessToken string, orderID string) (OrderStatusResponse, error) {
	var dto orderStatusDTO
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+accessToken).
		SetResult(&dto).
		Get(fmt.Sprintf("/trader/v1/accounts/%s/orders/%s", c.accountHash, orderID))
	if err != nil {
		return OrderStatusResponse{}, fmt.Errorf("get order status %s: %w", orderID, err)
	}
	if resp.IsError() {
		return OrderStatusResponse{}, fmt.Errorf("get order status %s failed: %s", orderID, resp.Status())
	}

	var legs []ExecutionLeg
	for _, activity := range dto.OrderActivityCollection {
		for _, leg := range activity.ExecutionLegs {
			legs = append(legs, ExecutionLeg{
				ExecutionID: strconv.FormatInt(leg.LegID, 10),
				Quantity:    decimal.NewFromFloat(leg.Quantity),
				Price:       decimal.NewFromFloat(leg.Price),
			})
		}
	}

	return OrderStatusResponse{
		OrderID:           strconv.FormatInt(dto.OrderID, 10),
		Status:            OrderStatus(dto.Status),
		FilledQuantity:    decimal.NewFromFloat(dto.FilledQuantity),
		RemainingQuantity: decimal.NewFromFloat(dto.RemainingQuantity),
		ExecutionLegs:     legs,
	}, nil
}
