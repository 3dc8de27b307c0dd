package controllers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/andrelucena/vitrine-backend/api/middleware"
	checkoutsvc "github.com/andrelucena/vitrine-backend/internal/checkout"
	pkgerrors "github.com/andrelucena/vitrine-backend/pkg/errors"
)

type stubCheckoutService struct {
	session *checkoutsvc.Session
	err     error

	lastStart     checkoutsvc.StartInput
	lastSessionID string
	lastAdvance   checkoutsvc.AdvanceInput
	captureCalls  int
}

func (s *stubCheckoutService) Start(ctx context.Context, input checkoutsvc.StartInput) (*checkoutsvc.Session, error) {
	s.lastStart = input
	return s.session, s.err
}

func (s *stubCheckoutService) Get(ctx context.Context, sessionID string) (*checkoutsvc.Session, error) {
	s.lastSessionID = sessionID
	return s.session, s.err
}

func (s *stubCheckoutService) Advance(ctx context.Context, sessionID string, input checkoutsvc.AdvanceInput) (*checkoutsvc.Session, error) {
	s.lastSessionID = sessionID
	s.lastAdvance = input
	return s.session, s.err
}

func (s *stubCheckoutService) Back(ctx context.Context, sessionID string) (*checkoutsvc.Session, error) {
	s.lastSessionID = sessionID
	return s.session, s.err
}

func (s *stubCheckoutService) RefreshQuotes(ctx context.Context, sessionID string) (*checkoutsvc.Session, error) {
	s.lastSessionID = sessionID
	return s.session, s.err
}

func (s *stubCheckoutService) BeginPayment(ctx context.Context, sessionID string) (*checkoutsvc.Session, error) {
	s.lastSessionID = sessionID
	return s.session, s.err
}

func (s *stubCheckoutService) Capture(ctx context.Context, sessionID string) (*checkoutsvc.Session, error) {
	s.lastSessionID = sessionID
	s.captureCalls++
	return s.session, s.err
}

func withSessionParam(req *http.Request, sessionID string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("sessionID", sessionID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestCheckoutStartResolvesGuestCart(t *testing.T) {
	stub := &stubCheckoutService{session: &checkoutsvc.Session{ID: "sess-1", Step: checkoutsvc.StepIdentify}}
	handler := CheckoutStart(stub, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req.Header.Set("X-Cart-Id", "guest-1")
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if stub.lastStart.CartID != "guest-1" || stub.lastStart.CustomerID != "" {
		t.Fatalf("unexpected start input: %+v", stub.lastStart)
	}
}

func TestCheckoutStartUsesAuthenticatedCustomer(t *testing.T) {
	stub := &stubCheckoutService{session: &checkoutsvc.Session{ID: "sess-1", Step: checkoutsvc.StepAddress}}
	handler := CheckoutStart(stub, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req = req.WithContext(middleware.WithCustomerID(req.Context(), "77"))
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	if stub.lastStart.CartID != "77" || stub.lastStart.CustomerID != "77" {
		t.Fatalf("unexpected start input: %+v", stub.lastStart)
	}
}

func TestCheckoutGetMapsNotFound(t *testing.T) {
	stub := &stubCheckoutService{err: pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")}
	handler := CheckoutGet(stub, nil)

	req := withSessionParam(httptest.NewRequest(http.MethodGet, "/api/v1/checkout/missing", nil), "missing")
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
	if stub.lastSessionID != "missing" {
		t.Fatalf("expected session id forwarded, got %q", stub.lastSessionID)
	}
}

func TestCheckoutAdvanceForwardsAddresses(t *testing.T) {
	stub := &stubCheckoutService{session: &checkoutsvc.Session{ID: "sess-1", Step: checkoutsvc.StepShipping}}
	handler := CheckoutAdvance(stub, nil)

	body := `{
		"billing": {"first_name":"Ana","last_name":"Lima","line1":"Av. Paulista, 1000","city":"São Paulo","state":"SP","postal_code":"01310-100","country":"BR","email":"ana@example.com"},
		"ship_to_billing": true
	}`
	req := withSessionParam(httptest.NewRequest(http.MethodPost, "/api/v1/checkout/sess-1/advance", bytes.NewReader([]byte(body))), "sess-1")
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(middleware.WithCustomerID(req.Context(), "77"))
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if stub.lastAdvance.Billing == nil || stub.lastAdvance.Billing.City != "São Paulo" {
		t.Fatalf("billing not forwarded: %+v", stub.lastAdvance)
	}
	if !stub.lastAdvance.ShipToBilling || stub.lastAdvance.CustomerID != "77" {
		t.Fatalf("unexpected advance input: %+v", stub.lastAdvance)
	}
}

func TestCheckoutAdvanceRejectsUnknownFields(t *testing.T) {
	handler := CheckoutAdvance(&stubCheckoutService{}, nil)

	req := withSessionParam(httptest.NewRequest(http.MethodPost, "/api/v1/checkout/sess-1/advance", bytes.NewReader([]byte(`{"step":4}`))), "sess-1")
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCheckoutCaptureMapsStateConflict(t *testing.T) {
	stub := &stubCheckoutService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "payment not started")}
	handler := CheckoutCapture(stub, nil)

	req := withSessionParam(httptest.NewRequest(http.MethodPost, "/api/v1/checkout/sess-1/payment/capture", nil), "sess-1")
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
	if stub.captureCalls != 1 {
		t.Fatalf("expected capture called once, got %d", stub.captureCalls)
	}
}

func TestCheckoutNilService(t *testing.T) {
	handler := CheckoutStart(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}
