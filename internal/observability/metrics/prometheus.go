package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/vusic/pkg/constants"
	"github.com/inferloop/vusic/pkg/errors"
)

// PrometheusMetrics collects encoder metrics in a private registry.
type PrometheusMetrics struct {
	logger   *logrus.Logger
	registry *prometheus.Registry
	server   *http.Server
	config   *PrometheusConfig

	encodeRequestsTotal *prometheus.CounterVec
	encodeDuration      *prometheus.HistogramVec
	framesEncodedTotal  *prometheus.CounterVec
	errorsTotal         *prometheus.CounterVec
	parameterInitsTotal prometheus.Counter
}

// PrometheusConfig configures Prometheus metrics
type PrometheusConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Port      int    `json:"port" mapstructure:"port"`
	Path      string `json:"path" mapstructure:"path"`
	Namespace string `json:"namespace" mapstructure:"namespace"`
	Subsystem string `json:"subsystem" mapstructure:"subsystem"`
}

// DefaultPrometheusConfig returns the default metrics configuration.
func DefaultPrometheusConfig() *PrometheusConfig {
	return &PrometheusConfig{
		Enabled:   false,
		Port:      constants.DefaultMetricsPort,
		Path:      constants.DefaultMetricsPath,
		Namespace: constants.MetricsNamespace,
		Subsystem: constants.MetricsSubsystem,
	}
}

// NewPrometheusMetrics creates a new Prometheus metrics instance
func NewPrometheusMetrics(config *PrometheusConfig, logger *logrus.Logger) (*PrometheusMetrics, error) {
	if config == nil {
		config = DefaultPrometheusConfig()
	}

	if logger == nil {
		logger = logrus.New()
	}

	pm := &PrometheusMetrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		config:   config,
	}

	pm.initializeMetrics()

	if err := pm.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return pm, nil
}

// Registry returns the registry holding the encoder collectors.
func (pm *PrometheusMetrics) Registry() *prometheus.Registry {
	return pm.registry
}

// Start starts the Prometheus metrics server
func (pm *PrometheusMetrics) Start(ctx context.Context) error {
	if !pm.config.Enabled {
		pm.logger.Debug("Prometheus metrics disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(pm.config.Path, promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	pm.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", pm.config.Port),
		Handler: mux,
	}

	pm.logger.WithFields(logrus.Fields{
		"port": pm.config.Port,
		"path": pm.config.Path,
	}).Info("Starting Prometheus metrics server")

	go func() {
		if err := pm.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			pm.logger.WithError(err).Error("Prometheus metrics server error")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pm.Stop(shutdownCtx)
	}()

	return nil
}

// Stop stops the Prometheus metrics server
func (pm *PrometheusMetrics) Stop(ctx context.Context) error {
	if pm.server == nil {
		return nil
	}

	pm.logger.Info("Stopping Prometheus metrics server")
	return pm.server.Shutdown(ctx)
}

// ObserveEncode records one encode call. frames is the number of retained
// output frames per batch element times the batch size.
func (pm *PrometheusMetrics) ObserveEncode(device string, frames int, duration time.Duration, err error) {
	status := constants.StatusSuccess
	if err != nil {
		status = constants.StatusError
		pm.errorsTotal.WithLabelValues(string(errors.GetErrorType(err))).Inc()
	}
	pm.encodeRequestsTotal.WithLabelValues(device, status).Inc()
	pm.encodeDuration.WithLabelValues(device).Observe(duration.Seconds())
	if frames > 0 {
		pm.framesEncodedTotal.WithLabelValues(device).Add(float64(frames))
	}
}

// ObserveParameterInit records a (re)initialization of encoder parameters.
func (pm *PrometheusMetrics) ObserveParameterInit() {
	pm.parameterInitsTotal.Inc()
}

// initializeMetrics initializes all Prometheus metrics
func (pm *PrometheusMetrics) initializeMetrics() {
	namespace := pm.config.Namespace
	subsystem := pm.config.Subsystem

	pm.encodeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "encode_requests_total",
			Help:      "Total number of encode calls",
		},
		[]string{"device", "status"},
	)

	pm.encodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "encode_duration_seconds",
			Help:      "Encode call duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"device"},
	)

	pm.framesEncodedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_encoded_total",
			Help:      "Total number of context vectors produced",
		},
		[]string{"device"},
	)

	pm.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total number of failed encode calls by error type",
		},
		[]string{"type"},
	)

	pm.parameterInitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "parameter_inits_total",
			Help:      "Total number of parameter initializations",
		},
	)
}

// registerMetrics registers all metrics with the registry
func (pm *PrometheusMetrics) registerMetrics() error {
	collectors := []prometheus.Collector{
		pm.encodeRequestsTotal,
		pm.encodeDuration,
		pm.framesEncodedTotal,
		pm.errorsTotal,
		pm.parameterInitsTotal,
	}

	for _, collector := range collectors {
		if err := pm.registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}
