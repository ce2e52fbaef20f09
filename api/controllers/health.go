package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/dropone-app/dropone-backend/api/responses"
	"github.com/dropone-app/dropone-backend/pkg/config"
	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
	"github.com/dropone-app/dropone-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-DropOne-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency the API needs to serve traffic.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbPinger, redisPinger pinger) http.HandlerFunc {
	checks := []struct {
		name string
		p    pinger
	}{
		{name: "database", p: dbPinger},
		{name: "redis", p: redisPinger},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-DropOne-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		for _, check := range checks {
			if check.p == nil {
				continue
			}
			if err := check.p.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, check.name+" unavailable").
					WithDetails(map[string]any{"dependency": check.name}))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
