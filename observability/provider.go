// Package observability provides a centralized provider for the logging and
// metrics components used throughout the assessment service.
package observability

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/MaanVader/Chack/observability/logger"
	"github.com/MaanVader/Chack/observability/metrics"
	"github.com/MaanVader/Chack/observability/types"
)

// Logger is an alias for types.Logger.
type Logger = types.Logger

// Metrics is an alias for types.Metrics.
type Metrics = types.Metrics

// Fields is an alias for types.Fields.
type Fields = types.Fields

// Config is an alias for types.Config.
type Config = types.Config

// Provider is an alias for types.Provider.
type Provider = types.Provider

// DefaultProvider implements Provider. Loggers and metrics are created lazily
// on first request and cached per component.
type DefaultProvider struct {
	config  *Config
	loggers map[string]Logger
	metrics map[string]Metrics
	closers []io.Closer
	mu      sync.RWMutex
}

// NewProvider creates a new observability provider.
// If LogOutput is not set it defaults to os.Stdout; if LoggerFactory is not
// set, components log JSON lines to LogOutput. If MetricsFactory is not set,
// components get Prometheus metrics on the default registry.
//
// Example:
//
//	provider := NewProvider(&Config{
//		ServiceName: "chack",
//		Environment: "production",
//		LogLevel:    "info",
//	})
//	log := provider.Logger("executor")
func NewProvider(config *Config, closers ...io.Closer) *DefaultProvider {
	if config.LogOutput == nil {
		config.LogOutput = os.Stdout
	}
	if config.MetricsFactory == nil {
		config.MetricsFactory = func(component string) Metrics {
			return metrics.New(fmt.Sprintf("%s_%s", config.ServiceName, component))
		}
	}

	return &DefaultProvider{
		config:  config,
		loggers: make(map[string]Logger),
		metrics: make(map[string]Metrics),
		closers: closers,
	}
}

// Logger returns the Logger for component. The logger carries the provider's
// AdditionalFields plus a "component" field, and its service name is
// "{ServiceName}.{component}".
func (p *DefaultProvider) Logger(component string) Logger {
	p.mu.RLock()
	if l, exists := p.loggers[component]; exists {
		p.mu.RUnlock()
		return l
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check
	if l, exists := p.loggers[component]; exists {
		return l
	}

	fields := make(Fields, len(p.config.AdditionalFields)+1)
	for k, v := range p.config.AdditionalFields {
		fields[k] = v
	}
	fields["component"] = component

	var l Logger
	serviceName := fmt.Sprintf("%s.%s", p.config.ServiceName, component)
	if p.config.LoggerFactory != nil {
		l = p.config.LoggerFactory(serviceName, fields)
	} else {
		l = logger.New(serviceName, p.config.Environment, p.config.LogLevel, p.config.LogOutput, fields)
	}
	p.loggers[component] = l

	return l
}

// Metrics returns the Metrics for component.
func (p *DefaultProvider) Metrics(component string) Metrics {
	p.mu.RLock()
	if m, exists := p.metrics[component]; exists {
		p.mu.RUnlock()
		return m
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check
	if m, exists := p.metrics[component]; exists {
		return m
	}

	m := p.config.MetricsFactory(component)
	p.metrics[component] = m

	return m
}

// Close releases the registered closers (e.g. a CloudWatch sink) and the log
// output when it is closable and not stdout/stderr.
func (p *DefaultProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for _, c := range p.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.closers = nil

	if closer, ok := p.config.LogOutput.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
