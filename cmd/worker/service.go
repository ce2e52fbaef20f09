package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dropone-app/dropone-backend/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

type runner interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger   *logger.Logger
	DB       pinger
	Redis    pinger
	PubSub   pinger
	Consumer runner
	// Admin serves /metrics and liveness. Optional.
	Admin *http.Server
}

// Service runs the fulfillment consumer next to the admin listener and stops
// both when either fails.
type Service struct {
	logg     *logger.Logger
	deps     map[string]pinger
	consumer runner
	admin    *http.Server
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Consumer == nil {
		return nil, errors.New("fulfillment consumer is required")
	}
	deps := map[string]pinger{}
	for name, p := range map[string]pinger{"database": params.DB, "redis": params.Redis, "pubsub": params.PubSub} {
		if p == nil {
			return nil, fmt.Errorf("%s client is required", name)
		}
		deps[name] = p
	}
	return &Service{
		logg:     params.Logger,
		deps:     deps,
		consumer: params.Consumer,
		admin:    params.Admin,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for name, dep := range s.deps {
		if err := dep.Ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.consumer.Run(gctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logg.Error(gctx, "fulfillment consumer stopped unexpectedly", err)
		}
		return err
	})

	if s.admin != nil {
		g.Go(func() error {
			if err := s.admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return s.admin.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
