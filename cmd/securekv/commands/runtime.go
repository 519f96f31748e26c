package commands

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/systmms/securekv/internal/builder"
	"github.com/systmms/securekv/internal/config"
	"github.com/systmms/securekv/internal/logging"
	"github.com/systmms/securekv/pkg/securekv"
)

// Runtime carries the global flags and builds the store on demand.
type Runtime struct {
	ConfigPath string
	Logger     *logging.Logger

	// MetricsFile receives the store metrics in Prometheus text format
	// when the command exits, for node_exporter's textfile collector.
	MetricsFile string

	// Builder is created from Logger when nil.
	Builder *builder.Builder

	cfg      *config.Config
	registry *prometheus.Registry
}

// Config loads the configuration once. A missing file yields the defaults.
func (r *Runtime) Config() (*config.Config, error) {
	if r.cfg != nil {
		return r.cfg, nil
	}
	path := r.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	r.Logger.Debug("using config %s (namespace %s)", path, cfg.Namespace)
	r.cfg = cfg
	return cfg, nil
}

func (r *Runtime) builder() *builder.Builder {
	if r.Builder == nil {
		r.Builder = builder.New(r.Logger)
	}
	if r.MetricsFile != "" && r.registry == nil {
		r.registry = prometheus.NewRegistry()
		r.Builder.WithRegisterer(r.registry)
	}
	return r.Builder
}

// FlushMetrics writes the collected metrics to MetricsFile. It does nothing
// when no file is set or no store was built.
func (r *Runtime) FlushMetrics() error {
	if r.MetricsFile == "" || r.registry == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(r.MetricsFile, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// Store builds the configured store. The caller must Close it.
func (r *Runtime) Store(ctx context.Context) (*securekv.Store, *config.Config, error) {
	cfg, err := r.Config()
	if err != nil {
		return nil, nil, err
	}
	store, err := r.builder().Build(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}
