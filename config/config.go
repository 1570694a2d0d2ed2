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

package config

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/juju/errors"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	StrategyNearest  = "nearest"
	StrategyWeighted = "weighted"
)

var dataStorePrefixes = []string{
	"mysql://",
	"postgres://",
	"postgresql://",
	"sqlite://",
	"mongodb://",
	"mongodb+srv://",
	"redis://",
	"rediss://",
}

// Config is the configuration for the rating service.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Predict  PredictConfig  `mapstructure:"predict"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// DatabaseConfig is the configuration for the rating store.
type DatabaseConfig struct {
	DataStore   string `mapstructure:"data_store" validate:"required,data_store"`
	TablePrefix string `mapstructure:"table_prefix"`
}

// ServerConfig is the configuration for the RESTful API server.
type ServerConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	APIKey             string        `mapstructure:"api_key"`
	DefaultN           int           `mapstructure:"default_n" validate:"gt=0"`
	SimilarityCacheTTL time.Duration `mapstructure:"similarity_cache_ttl" validate:"gte=0"`
	NumJobs            int           `mapstructure:"n_jobs" validate:"gt=0"`
	RatingWriteLimit   int           `mapstructure:"rating_write_limit" validate:"gte=0"`
}

// PredictConfig is the configuration for rating prediction.
type PredictConfig struct {
	Strategy    string  `mapstructure:"strategy" validate:"oneof=nearest weighted"`
	K           int     `mapstructure:"k" validate:"gt=0"`
	ExcludeSelf bool    `mapstructure:"exclude_self"`
	MinScore    float64 `mapstructure:"min_score"`
	MaxScore    float64 `mapstructure:"max_score" validate:"gtfield=MinScore"`
}

// TracingConfig is the configuration for tracing.
type TracingConfig struct {
	EnableTracing     bool    `mapstructure:"enable_tracing"`
	Exporter          string  `mapstructure:"exporter" validate:"oneof=zipkin otlp otlphttp"`
	CollectorEndpoint string  `mapstructure:"collector_endpoint"`
	Sampler           string  `mapstructure:"sampler" validate:"oneof=always never ratio"`
	Ratio             float64 `mapstructure:"ratio" validate:"gte=0,lte=1"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DataStore: "sqlite://ratings.db",
		},
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8087,
			DefaultN:           10,
			SimilarityCacheTTL: 10 * time.Minute,
			NumJobs:            4,
		},
		Predict: PredictConfig{
			Strategy:    StrategyNearest,
			K:           20,
			ExcludeSelf: true,
			MinScore:    1,
			MaxScore:    5,
		},
		Tracing: TracingConfig{
			Exporter:          "otlp",
			CollectorEndpoint: "localhost:4317",
			Sampler:           "always",
			Ratio:             1,
		},
	}
}

func setDefault() {
	defaultConfig := GetDefaultConfig()
	// [database]
	viper.SetDefault("database.data_store", defaultConfig.Database.DataStore)
	viper.SetDefault("database.table_prefix", defaultConfig.Database.TablePrefix)
	// [server]
	viper.SetDefault("server.host", defaultConfig.Server.Host)
	viper.SetDefault("server.port", defaultConfig.Server.Port)
	viper.SetDefault("server.api_key", defaultConfig.Server.APIKey)
	viper.SetDefault("server.default_n", defaultConfig.Server.DefaultN)
	viper.SetDefault("server.similarity_cache_ttl", defaultConfig.Server.SimilarityCacheTTL)
	viper.SetDefault("server.n_jobs", defaultConfig.Server.NumJobs)
	viper.SetDefault("server.rating_write_limit", defaultConfig.Server.RatingWriteLimit)
	// [predict]
	viper.SetDefault("predict.strategy", defaultConfig.Predict.Strategy)
	viper.SetDefault("predict.k", defaultConfig.Predict.K)
	viper.SetDefault("predict.exclude_self", defaultConfig.Predict.ExcludeSelf)
	viper.SetDefault("predict.min_score", defaultConfig.Predict.MinScore)
	viper.SetDefault("predict.max_score", defaultConfig.Predict.MaxScore)
	// [tracing]
	viper.SetDefault("tracing.enable_tracing", defaultConfig.Tracing.EnableTracing)
	viper.SetDefault("tracing.exporter", defaultConfig.Tracing.Exporter)
	viper.SetDefault("tracing.collector_endpoint", defaultConfig.Tracing.CollectorEndpoint)
	viper.SetDefault("tracing.sampler", defaultConfig.Tracing.Sampler)
	viper.SetDefault("tracing.ratio", defaultConfig.Tracing.Ratio)
}

type configBinding struct {
	key string
	env string
}

// LoadConfig loads configuration from toml file. Environment variables
// override values in the file.
func LoadConfig(path string) (*Config, error) {
	// set default config
	viper.Reset()
	setDefault()

	// bind environment bindings
	bindings := []configBinding{
		{"database.data_store", "RATINGS_DATA_STORE"},
		{"database.table_prefix", "RATINGS_TABLE_PREFIX"},
		{"server.host", "RATINGS_SERVER_HOST"},
		{"server.port", "RATINGS_SERVER_PORT"},
		{"server.api_key", "RATINGS_SERVER_API_KEY"},
		{"server.n_jobs", "RATINGS_SERVER_N_JOBS"},
		{"predict.strategy", "RATINGS_PREDICT_STRATEGY"},
		{"predict.k", "RATINGS_PREDICT_K"},
		{"tracing.enable_tracing", "RATINGS_ENABLE_TRACING"},
		{"tracing.collector_endpoint", "RATINGS_COLLECTOR_ENDPOINT"},
	}
	for _, binding := range bindings {
		if err := viper.BindEnv(binding.key, binding.env); err != nil {
			return nil, errors.Trace(err)
		}
	}

	// load config file
	if path != "" {
		viper.SetConfigType("toml")
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}

	// unmarshal config file
	var conf Config
	if err := viper.Unmarshal(&conf, viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc())); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

// Validate checks the configuration.
func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.RegisterValidation("data_store", func(fl validator.FieldLevel) bool {
		prefix := fl.Field().String()
		for _, p := range dataStorePrefixes {
			if strings.HasPrefix(prefix, p) {
				return true
			}
		}
		return false
	}); err != nil {
		return errors.Trace(err)
	}
	return validate.Struct(config)
}

// NewTracerProvider creates a tracer provider exporting spans to the collector.
// A no-op provider is returned if tracing is disabled.
func (config *TracingConfig) NewTracerProvider() (trace.TracerProvider, error) {
	if !config.EnableTracing {
		return noop.NewTracerProvider(), nil
	}

	var exporter tracesdk.SpanExporter
	var err error
	switch config.Exporter {
	case "zipkin":
		exporter, err = zipkin.New(config.CollectorEndpoint)
	case "otlp":
		client := otlptracegrpc.NewClient(otlptracegrpc.WithInsecure(), otlptracegrpc.WithEndpoint(config.CollectorEndpoint))
		exporter, err = otlptrace.New(context.TODO(), client)
	case "otlphttp":
		client := otlptracehttp.NewClient(otlptracehttp.WithInsecure(), otlptracehttp.WithEndpoint(config.CollectorEndpoint))
		exporter, err = otlptrace.New(context.TODO(), client)
	default:
		return nil, errors.NotSupportedf("exporter %s", config.Exporter)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}

	var sampler tracesdk.Sampler
	switch config.Sampler {
	case "always":
		sampler = tracesdk.AlwaysSample()
	case "never":
		sampler = tracesdk.NeverSample()
	case "ratio":
		sampler = tracesdk.TraceIDRatioBased(config.Ratio)
	default:
		return nil, errors.NotSupportedf("sampler %s", config.Sampler)
	}

	return tracesdk.NewTracerProvider(
		tracesdk.WithSampler(sampler),
		tracesdk.WithBatcher(exporter),
		tracesdk.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "ratings"),
		)),
	), nil
}
