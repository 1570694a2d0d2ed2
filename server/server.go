// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/gorse-io/ratings/base/log"
	"github.com/gorse-io/ratings/config"
	"github.com/gorse-io/ratings/storage/data"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const connectTimeout = 30 * time.Second

// Server manages states of a rating server.
type Server struct {
	*RestServer
	httpServer     *http.Server
	tracerProvider trace.TracerProvider
}

var openDatabase = data.Open

func closeDatabase(database data.Database) {
	if err := database.Close(); err != nil {
		log.Logger().Warn("failed to close data database", zap.Error(err))
	}
}

// NewServer connects to the data store and creates a rating server.
func NewServer(cfg *config.Config) (*Server, error) {
	// setup trace provider
	tp, err := cfg.Tracing.NewTracerProvider()
	if err != nil {
		log.Logger().Error("failed to create trace provider", zap.Error(err))
		return nil, errors.Trace(err)
	}
	otel.SetTracerProvider(tp)
	otel.SetErrorHandler(log.GetErrorHandler())
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	dataClient, err := openDatabase(cfg.Database.DataStore, cfg.Database.TablePrefix)
	if err != nil {
		log.Logger().Error("failed to connect data database", zap.Error(err),
			zap.String("database", log.RedactDBURL(cfg.Database.DataStore)))
		return nil, errors.Trace(err)
	}
	// wait for data store
	if _, err = backoff.Retry(context.Background(), func() (struct{}, error) {
		return struct{}{}, dataClient.Ping()
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(connectTimeout),
		backoff.WithNotify(func(err error, d time.Duration) {
			log.Logger().Warn("failed to ping data database", zap.Error(err), zap.Duration("retry_after", d))
		})); err != nil {
		closeDatabase(dataClient)
		return nil, errors.Trace(err)
	}
	if err = dataClient.Init(); err != nil {
		log.Logger().Error("failed to init data database", zap.Error(err))
		closeDatabase(dataClient)
		return nil, errors.Trace(err)
	}
	restServer, err := NewRestServer(cfg, dataClient)
	if err != nil {
		closeDatabase(dataClient)
		return nil, errors.Trace(err)
	}
	return &Server{RestServer: restServer, tracerProvider: tp}, nil
}

// Handler returns the HTTP handler serving the RESTful API, API docs and metrics.
func (s *Server) Handler() http.Handler {
	container := restful.NewContainer()
	container.Add(s.WebService)
	specConfig := restfulspec.Config{
		WebServices: container.RegisteredWebServices(),
		APIPath:     "/apidocs.json",
	}
	container.Add(restfulspec.NewOpenAPIService(specConfig))
	container.Handle("/metrics", promhttp.Handler())
	return container
}

// Serve loads ratings from the data store and starts the RESTful API server.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.LoadDataset(ctx); err != nil {
		log.Logger().Error("failed to load ratings", zap.Error(err))
		return errors.Trace(err)
	}
	log.Logger().Info("ratings loaded",
		zap.Int("n_users", s.Dataset().CountUsers()),
		zap.Int("n_items", s.Dataset().CountItems()),
		zap.Int("n_ratings", s.Dataset().CountRatings()))
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port),
		Handler: s.Handler(),
	}
	log.Logger().Info("start rating server",
		zap.String("url", fmt.Sprintf("http://%s:%d", s.Config.Server.Host, s.Config.Server.Port)))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Trace(err)
	}
	return nil
}

// Shutdown stops the RESTful API server and closes the data store.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return errors.Trace(err)
		}
	}
	s.Close()
	if tp, ok := s.tracerProvider.(interface {
		Shutdown(context.Context) error
	}); ok {
		if err := tp.Shutdown(ctx); err != nil {
			log.Logger().Error("failed to shutdown trace provider", zap.Error(err))
		}
	}
	return errors.Trace(s.DataClient.Close())
}
