package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/andrelucena/vitrine-backend/pkg/config"
	pkgerrors "github.com/andrelucena/vitrine-backend/pkg/errors"
	"github.com/andrelucena/vitrine-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

const (
	sandboxEnv = "sandbox"
	liveEnv    = "live"

	responseBodyReadLimit int64 = 2048
)

var (
	errCredentialsRequired = errors.New("payment client id and secret are required")
	errInvalidPaymentEnv   = fmt.Errorf("payment environment must be %q or %q", sandboxEnv, liveEnv)
	errLoggerRequired      = errors.New("payment logger is required")
)

var baseURLs = map[string]string{
	sandboxEnv: "https://api-m.sandbox.paypal.com",
	liveEnv:    "https://api-m.paypal.com",
}

// Client wraps the hosted-checkout provider's order API with centralized
// auth, logging, and error mapping.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string
	environment  string
	currency     string
	logger       *logger.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the environment-derived base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = strings.TrimRight(trimmed, "/")
		}
	}
}

// NewClient initializes the provider wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.PaymentConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	clientID := strings.TrimSpace(cfg.ClientID)
	clientSecret := strings.TrimSpace(cfg.ClientSecret)
	if clientID == "" || clientSecret == "" {
		return nil, errCredentialsRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	currency := strings.TrimSpace(strings.ToUpper(cfg.Currency))
	if currency == "" {
		currency = "BRL"
	}

	baseURL := baseURLs[env]
	if override := strings.TrimSpace(cfg.BaseURL); override != "" {
		baseURL = strings.TrimRight(override, "/")
	}

	c := &Client{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		environment:  env,
		currency:     currency,
		logger:       logg,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	logg.Info(ctx, fmt.Sprintf("payment client initialized (%s)", env))
	return c, nil
}

// Environment reports the normalized provider environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// Currency reports the configured checkout currency.
func (c *Client) Currency() string {
	if c == nil {
		return ""
	}
	return c.currency
}

// CreateOrderInput describes the order registered with the provider before
// the buyer approves payment.
type CreateOrderInput struct {
	Amount    decimal.Decimal
	Reference string
}

// CaptureResult is the normalized outcome of a capture call.
type CaptureResult struct {
	ProviderOrderID string
	CaptureID       string
	Status          string
	PayerEmail      string
}

// CreateOrder registers the frozen checkout total and returns the provider
// order id handed to the hosted approval flow.
func (c *Client) CreateOrder(ctx context.Context, input CreateOrderInput) (string, error) {
	if c == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "payment client not configured")
	}
	if input.Amount.IsNegative() || input.Amount.IsZero() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}

	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": input.Reference,
			"amount": map[string]string{
				"currency_code": c.currency,
				"value":         input.Amount.StringFixed(2),
			},
		}},
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", payload, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "provider order response missing id")
	}
	return resp.ID, nil
}

// CaptureOrder finalizes the charge for an approved provider order.
// Declines are reported as payment rejections, not dependency failures.
func (c *Client) CaptureOrder(ctx context.Context, providerOrderID string) (*CaptureResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment client not configured")
	}
	if strings.TrimSpace(providerOrderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider order id is required")
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Payer  struct {
			Email string `json:"email_address"`
		} `json:"payer"`
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}

	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", strings.TrimSpace(providerOrderID))
	if err := c.do(ctx, http.MethodPost, path, map[string]any{}, &resp); err != nil {
		if status := upstreamStatus(err); status == http.StatusUnprocessableEntity || status == http.StatusPaymentRequired {
			return nil, pkgerrors.Wrap(pkgerrors.CodePaymentRejected, err, "capture declined")
		}
		return nil, err
	}

	result := &CaptureResult{
		ProviderOrderID: resp.ID,
		Status:          strings.ToUpper(resp.Status),
		PayerEmail:      resp.Payer.Email,
	}
	for _, unit := range resp.PurchaseUnits {
		for _, capture := range unit.Payments.Captures {
			result.CaptureID = capture.ID
			break
		}
		if result.CaptureID != "" {
			break
		}
	}

	if result.Status != "COMPLETED" {
		return nil, pkgerrors.New(pkgerrors.CodePaymentRejected, fmt.Sprintf("capture returned status %s", result.Status)).
			WithDetails(map[string]string{"status": result.Status})
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, dest any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal payment request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build payment request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute payment request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		upstream := &pkgerrors.UpstreamError{
			Service: "payment",
			Status:  resp.StatusCode,
			Body:    strings.TrimSpace(string(msg)),
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, upstream, "payment request failed")
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment response")
	}
	return nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := strings.NewReader("grant_type=client_credentials")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", form)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build token request")
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute token request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		upstream := &pkgerrors.UpstreamError{
			Service: "payment",
			Status:  resp.StatusCode,
			Body:    strings.TrimSpace(string(msg)),
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, upstream, "token request failed")
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode token response")
	}
	if tokenResp.AccessToken == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "token response missing access token")
	}

	c.accessToken = tokenResp.AccessToken
	ttl := time.Duration(tokenResp.ExpiresIn) * time.Second
	if ttl <= time.Minute {
		ttl = time.Minute
	}
	c.tokenExpiry = time.Now().Add(ttl - 30*time.Second)
	return c.accessToken, nil
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = sandboxEnv
	}
	switch env {
	case sandboxEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidPaymentEnv
	}
}

func upstreamStatus(err error) int {
	var upstream *pkgerrors.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Status
	}
	return 0
}
