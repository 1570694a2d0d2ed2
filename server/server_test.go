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
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gorse-io/ratings/config"
	"github.com/gorse-io/ratings/storage/data"
	"github.com/juju/errors"
	"github.com/steinfletcher/apitest"
	"github.com/stretchr/testify/assert"
)

func marshal(t *testing.T, v any) string {
	s, err := json.Marshal(v)
	assert.NoError(t, err)
	return string(s)
}

func TestServer_Handler(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Database.DataStore = fmt.Sprintf("sqlite://%s/data.db", t.TempDir())
	s, err := NewServer(cfg)
	assert.NoError(t, err)
	err = s.DataClient.BatchInsertRatings(context.Background(), []data.Rating{
		{UserId: "u1", ItemId: "i1", Score: 5},
		{UserId: "u2", ItemId: "i1", Score: 4},
	}, true)
	assert.NoError(t, err)
	assert.NoError(t, s.LoadDataset(context.Background()))
	assert.Equal(t, 2, s.Dataset().CountRatings())

	handler := s.Handler()
	apitest.New().
		Handler(handler).
		Get("/api/health").
		Expect(t).
		Status(http.StatusOK).
		Body(marshal(t, HealthStatus{
			DataStoreConnected: true,
			Ratings:            2,
			DatasetTimestamp:   s.Dataset().GetTimestamp(),
		})).
		End()
	apitest.New().
		Handler(handler).
		Get("/apidocs.json").
		Expect(t).
		Status(http.StatusOK).
		End()
	apitest.New().
		Handler(handler).
		Get("/metrics").
		Expect(t).
		Status(http.StatusOK).
		End()
	assert.NoError(t, s.Shutdown(context.Background()))
}

func TestNewServer(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Database.DataStore = "oracle://localhost"
	_, err := NewServer(cfg)
	assert.Error(t, err)

	cfg = config.GetDefaultConfig()
	cfg.Database.DataStore = fmt.Sprintf("sqlite://%s/data.db", t.TempDir())
	cfg.Tracing.EnableTracing = true
	cfg.Tracing.Exporter = "jaeger"
	_, err = NewServer(cfg)
	assert.Error(t, err)
}

type initFailDatabase struct {
	data.Database
	closed bool
}

func (d *initFailDatabase) Init() error {
	return errors.New("init failed")
}

func (d *initFailDatabase) Close() error {
	d.closed = true
	return d.Database.Close()
}

func TestNewServerClosesDatabase(t *testing.T) {
	var database *initFailDatabase
	openDatabase = func(path, tablePrefix string) (data.Database, error) {
		client, err := data.Open(path, tablePrefix)
		if err != nil {
			return nil, err
		}
		database = &initFailDatabase{Database: client}
		return database, nil
	}
	defer func() { openDatabase = data.Open }()

	cfg := config.GetDefaultConfig()
	cfg.Database.DataStore = fmt.Sprintf("sqlite://%s/data.db", t.TempDir())
	_, err := NewServer(cfg)
	assert.Error(t, err)
	if assert.NotNil(t, database) {
		assert.True(t, database.closed)
	}
}
