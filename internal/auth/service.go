package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	pkgauth "github.com/andrelucena/vitrine-backend/pkg/auth"
	"github.com/andrelucena/vitrine-backend/pkg/commerce"
	"github.com/andrelucena/vitrine-backend/pkg/config"
	pkgerrors "github.com/andrelucena/vitrine-backend/pkg/errors"
	"github.com/andrelucena/vitrine-backend/pkg/logger"
)

// customerDirectory is the slice of the commerce client used for customer
// credentials. The storefront never stores passwords itself.
type customerDirectory interface {
	Login(ctx context.Context, email, password string) (*commerce.Customer, error)
	Register(ctx context.Context, input commerce.RegisterInput) (*commerce.Customer, error)
}

// LoginInput carries validated credentials.
type LoginInput struct {
	Email    string
	Password string
}

// RegisterInput carries the validated profile for a new customer.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// SessionDTO is the authenticated session returned to the client.
type SessionDTO struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	Customer  commerce.Customer `json:"customer"`
}

// Service authenticates customers against the commerce platform and mints
// storefront access tokens.
type Service interface {
	Login(ctx context.Context, input LoginInput) (*SessionDTO, error)
	Register(ctx context.Context, input RegisterInput) (*SessionDTO, error)
}

type service struct {
	directory customerDirectory
	jwtCfg    config.JWTConfig
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the auth service.
func NewService(directory customerDirectory, jwtCfg config.JWTConfig, logg *logger.Logger) (Service, error) {
	if directory == nil {
		return nil, fmt.Errorf("customer directory required")
	}
	if jwtCfg.Secret == "" || jwtCfg.Issuer == "" {
		return nil, fmt.Errorf("jwt config required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{directory: directory, jwtCfg: jwtCfg, logg: logg, now: time.Now}, nil
}

func (s *service) Login(ctx context.Context, input LoginInput) (*SessionDTO, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email and password are required")
	}

	customer, err := s.directory.Login(ctx, email, input.Password)
	if err != nil {
		return nil, err
	}
	return s.session(ctx, customer)
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*SessionDTO, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email and password are required")
	}
	if len(input.Password) < 8 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "password must have at least 8 characters")
	}

	customer, err := s.directory.Register(ctx, commerce.RegisterInput{
		Email:     email,
		Password:  input.Password,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithCustomerID(ctx, customer.ID), "customer registered")
	return s.session(ctx, customer)
}

func (s *service) session(ctx context.Context, customer *commerce.Customer) (*SessionDTO, error) {
	now := s.now().UTC()
	token, err := pkgauth.MintAccessToken(s.jwtCfg, now, pkgauth.AccessTokenPayload{
		CustomerID: customer.ID,
		Email:      customer.Email,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to mint access token")
	}

	return &SessionDTO{
		Token:     token,
		ExpiresAt: now.Add(s.jwtCfg.Expiration()),
		Customer:  *customer,
	}, nil
}
