package controllers

import (
	"context"
	"net/http"

	"github.com/andrelucena/vitrine-backend/api/responses"
	"github.com/andrelucena/vitrine-backend/pkg/config"
	pkgerrors "github.com/andrelucena/vitrine-backend/pkg/errors"
	"github.com/andrelucena/vitrine-backend/pkg/logger"
)

type pinger interface {
	Ping(context.Context) error
}

// ReadinessCheck names a dependency the readiness probe must reach.
type ReadinessCheck struct {
	Name   string
	Pinger pinger
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Vitrine-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, checks ...ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Vitrine-Env", cfg.App.Env)

		for _, check := range checks {
			if check.Pinger == nil {
				continue
			}
			if err := check.Pinger.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, check.Name+" unavailable"))
				return
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
