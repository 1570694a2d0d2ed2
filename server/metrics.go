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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PredictSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ratings",
		Subsystem: "server",
		Name:      "predict_seconds",
	})
	RecommendSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ratings",
		Subsystem: "server",
		Name:      "recommend_seconds",
	})
	PredictTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ratings",
		Subsystem: "server",
		Name:      "predict_total",
	}, []string{"result"})
	SimilarityCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ratings",
		Subsystem: "server",
		Name:      "similarity_cache_hits_total",
	})
	SimilarityCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ratings",
		Subsystem: "server",
		Name:      "similarity_cache_misses_total",
	})
	RatingWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ratings",
		Subsystem: "server",
		Name:      "rating_writes_total",
	})
	DatasetRatings = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ratings",
		Subsystem: "server",
		Name:      "dataset_ratings",
	})
)
