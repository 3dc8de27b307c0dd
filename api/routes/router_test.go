package routes

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	authsvc "github.com/andrelucena/vitrine-backend/internal/auth"
	cartsvc "github.com/andrelucena/vitrine-backend/internal/cart"
	checkoutsvc "github.com/andrelucena/vitrine-backend/internal/checkout"
	shippingsvc "github.com/andrelucena/vitrine-backend/internal/shipping"
	pkgauth "github.com/andrelucena/vitrine-backend/pkg/auth"
	"github.com/andrelucena/vitrine-backend/pkg/commerce"
	"github.com/andrelucena/vitrine-backend/pkg/config"
	"github.com/andrelucena/vitrine-backend/pkg/logger"
	"github.com/andrelucena/vitrine-backend/pkg/types"
)

type stubAuthService struct{}

func (stubAuthService) Login(ctx context.Context, input authsvc.LoginInput) (*authsvc.SessionDTO, error) {
	return &authsvc.SessionDTO{
		Token:     "access-token",
		ExpiresAt: time.Now().Add(time.Hour),
		Customer:  commerce.Customer{ID: "77", Email: input.Email},
	}, nil
}

func (stubAuthService) Register(ctx context.Context, input authsvc.RegisterInput) (*authsvc.SessionDTO, error) {
	return &authsvc.SessionDTO{Token: "access-token"}, nil
}

type stubCartService struct{}

func (stubCartService) Get(ctx context.Context, cartID string) (*cartsvc.Cart, error) {
	return &cartsvc.Cart{ID: cartID}, nil
}

func (stubCartService) AddItem(ctx context.Context, cartID string, item types.CartItem) (*cartsvc.Cart, error) {
	return &cartsvc.Cart{ID: cartID, Items: []types.CartItem{item}}, nil
}

func (stubCartService) SetQuantity(ctx context.Context, cartID, lineKey string, quantity int) (*cartsvc.Cart, error) {
	return &cartsvc.Cart{ID: cartID}, nil
}

func (stubCartService) RemoveItem(ctx context.Context, cartID, lineKey string) (*cartsvc.Cart, error) {
	return &cartsvc.Cart{ID: cartID}, nil
}

func (stubCartService) Clear(ctx context.Context, cartID string) error {
	return nil
}

type stubShippingService struct{}

func (stubShippingService) Quote(ctx context.Context, req shippingsvc.QuoteRequest) (*shippingsvc.QuoteResult, error) {
	return &shippingsvc.QuoteResult{Zone: "Brasil", Methods: []shippingsvc.Quote{{ID: "flat_rate:1"}}}, nil
}

func (stubShippingService) FreeShippingThreshold() decimal.Decimal {
	return decimal.RequireFromString("500.00")
}

type stubCheckoutService struct{}

func (stubCheckoutService) Start(ctx context.Context, input checkoutsvc.StartInput) (*checkoutsvc.Session, error) {
	return &checkoutsvc.Session{ID: "sess-1", CartID: input.CartID, Step: checkoutsvc.StepIdentify}, nil
}

func (stubCheckoutService) Get(ctx context.Context, sessionID string) (*checkoutsvc.Session, error) {
	return &checkoutsvc.Session{ID: sessionID}, nil
}

func (stubCheckoutService) Advance(ctx context.Context, sessionID string, input checkoutsvc.AdvanceInput) (*checkoutsvc.Session, error) {
	return &checkoutsvc.Session{ID: sessionID}, nil
}

func (stubCheckoutService) Back(ctx context.Context, sessionID string) (*checkoutsvc.Session, error) {
	return &checkoutsvc.Session{ID: sessionID}, nil
}

func (stubCheckoutService) RefreshQuotes(ctx context.Context, sessionID string) (*checkoutsvc.Session, error) {
	return &checkoutsvc.Session{ID: sessionID}, nil
}

func (stubCheckoutService) BeginPayment(ctx context.Context, sessionID string) (*checkoutsvc.Session, error) {
	return &checkoutsvc.Session{ID: sessionID}, nil
}

func (stubCheckoutService) Capture(ctx context.Context, sessionID string) (*checkoutsvc.Session, error) {
	return &checkoutsvc.Session{ID: sessionID}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "dev", Port: "0"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "vitrine", ExpirationMinutes: 60},
	}
}

func newTestRouter(cfg *config.Config) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	return NewRouter(
		cfg,
		logg,
		nil,
		nil,
		prometheus.NewRegistry(),
		stubAuthService{},
		stubCartService{},
		stubShippingService{},
		stubCheckoutService{},
	)
}

func buildToken(t *testing.T, cfg *config.Config) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{
		CustomerID: "77",
		Email:      "ana@example.com",
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got := resp.Header().Get("X-Vitrine-Env"); got != "dev" {
		t.Fatalf("expected env header, got %q", got)
	}
}

func TestMetricsExposed(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestLoginRouteWired(t *testing.T) {
	router := newTestRouter(testConfig())
	body := []byte(`{"email":"ana@example.com","password":"secret123"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestCartRequiresIdentity(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without cart identity got %d", resp.Code)
	}
}

func TestCartAcceptsGuestHeader(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("X-Cart-Id", "guest-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestCheckoutStartWired(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req.Header.Set("X-Cart-Id", "guest-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestMeRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestMeSucceedsWithJWT(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestOptionalAuthRejectsBadTokenOnCheckout(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req.Header.Set("X-Cart-Id", "guest-1")
	req.Header.Set("Authorization", "Bearer tampered")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for tampered token got %d", resp.Code)
	}
}
