package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andrelucena/vitrine-backend/pkg/config"
	pkgerrors "github.com/andrelucena/vitrine-backend/pkg/errors"
)

const responseBodyReadLimit int64 = 2048

var (
	errBaseURLRequired     = errors.New("commerce base url is required")
	errCredentialsRequired = errors.New("commerce consumer key and secret are required")
)

// Client talks to the commerce platform REST API that owns customers,
// shipping zone configuration, and orders.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	consumerKey    string
	consumerSecret string
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

// NewClient builds the commerce client from configuration.
func NewClient(cfg config.CommerceConfig, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	key := strings.TrimSpace(cfg.ConsumerKey)
	secret := strings.TrimSpace(cfg.ConsumerSecret)
	if key == "" || secret == "" {
		return nil, errCredentialsRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        strings.TrimRight(baseURL, "/"),
		consumerKey:    key,
		consumerSecret: secret,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

// Customer is the normalized customer record returned by login/register.
type Customer struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// RegisterInput is the profile submitted when creating a customer.
type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
}

// Login verifies customer credentials against the platform.
func (c *Client) Login(ctx context.Context, email, password string) (*Customer, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "commerce client not configured")
	}
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email and password are required")
	}

	payload := map[string]string{"email": email, "password": password}
	var raw rawCustomer
	if err := c.do(ctx, http.MethodPost, "customers/login", payload, &raw); err != nil {
		if upstream := upstreamStatus(err); upstream == http.StatusUnauthorized || upstream == http.StatusForbidden {
			return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid credentials")
		}
		return nil, err
	}
	return normalizeCustomer(raw)
}

// Register creates a customer account on the platform.
func (c *Client) Register(ctx context.Context, input RegisterInput) (*Customer, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "commerce client not configured")
	}
	if strings.TrimSpace(input.Email) == "" || input.Password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email and password are required")
	}

	var raw rawCustomer
	if err := c.do(ctx, http.MethodPost, "customers", input, &raw); err != nil {
		if upstreamStatus(err) == http.StatusConflict {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "email already registered")
		}
		return nil, err
	}
	return normalizeCustomer(raw)
}

// ShippingZones returns the configured zones with their location rules and
// rate methods, normalized at this boundary.
func (c *Client) ShippingZones(ctx context.Context) ([]Zone, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "commerce client not configured")
	}

	var raw []rawZone
	if err := c.do(ctx, http.MethodGet, "shipping/zones", nil, &raw); err != nil {
		return nil, err
	}

	zones := make([]Zone, 0, len(raw))
	for _, z := range raw {
		zones = append(zones, normalizeZone(z))
	}
	return zones, nil
}

// SubmitOrder posts a finalized order and returns its identifier/number.
func (c *Client) SubmitOrder(ctx context.Context, order OrderRequest) (*OrderConfirmation, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "commerce client not configured")
	}
	if len(order.LineItems) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one line item")
	}

	var raw struct {
		ID     any    `json:"id"`
		Number string `json:"number"`
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "orders", order, &raw); err != nil {
		return nil, err
	}

	confirmation := &OrderConfirmation{
		ID:     asString(raw.ID),
		Number: raw.Number,
		Status: raw.Status,
	}
	if confirmation.Number == "" {
		confirmation.Number = confirmation.ID
	}
	if confirmation.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "order response missing id")
	}
	return confirmation, nil
}

// Ping verifies the platform is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "commerce client not configured")
	}
	return c.do(ctx, http.MethodGet, "system/status", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, dest any) error {
	url := fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal commerce request")
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build commerce request")
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.SetBasicAuth(c.consumerKey, c.consumerSecret)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute commerce request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		upstream := &pkgerrors.UpstreamError{
			Service: "commerce",
			Status:  resp.StatusCode,
			Body:    strings.TrimSpace(string(msg)),
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, upstream, "commerce request failed")
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode commerce response")
	}
	return nil
}

func upstreamStatus(err error) int {
	var upstream *pkgerrors.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Status
	}
	return 0
}

func asString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%.0f", v), ".")
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
