package gaze

import (
	"fmt"
	"log/slog"
	"sync"
)

// BackendKind selects the gaze transport.
type BackendKind string

const (
	BackendNone    BackendKind = "none"
	BackendDevice  BackendKind = "device"
	BackendNetwork BackendKind = "network"
)

// ParseBackendKind maps a settings value to a BackendKind. The empty string
// selects the network backend.
func ParseBackendKind(s string) (BackendKind, error) {
	switch BackendKind(s) {
	case "", BackendNetwork:
		return BackendNetwork, nil
	case BackendDevice:
		return BackendDevice, nil
	case BackendNone:
		return BackendNone, nil
	}
	return BackendNone, fmt.Errorf("unknown gaze backend %q", s)
}

// Config selects and configures a backend.
type Config struct {
	Backend BackendKind
	// Server is the telemetry server, "ip:port". Network backend only.
	Server string
}

// Backend is one gaze transport. A backend is constructed active and owns
// its socket or device handle until Teardown.
type Backend interface {
	// PollOnce drains a bounded amount of pending input and returns the
	// latest sample.
	PollOnce() Sample
	// CurrentSample returns the latest accepted sample without blocking.
	CurrentSample() Sample
	// Teardown releases every resource before returning.
	Teardown() error
}

// Provider owns at most one active Backend.
type Provider struct {
	mu      sync.Mutex
	backend Backend
	config  Config
	current *sampleCell

	logger    *slog.Logger
	deviceAPI DeviceAPIFactory
	listen    ListenFunc
}

// ProviderOption customizes a Provider.
type ProviderOption func(*Provider)

// WithLogger sets the logger used by the provider and its backends.
func WithLogger(l *slog.Logger) ProviderOption {
	return func(p *Provider) { p.logger = l }
}

// WithDeviceAPI sets the factory used by the device backend.
func WithDeviceAPI(f DeviceAPIFactory) ProviderOption {
	return func(p *Provider) { p.deviceAPI = f }
}

// WithListener replaces the UDP socket constructor of the network backend.
func WithListener(f ListenFunc) ProviderOption {
	return func(p *Provider) { p.listen = f }
}

// NewProvider returns an inactive provider.
func NewProvider(opts ...ProviderOption) *Provider {
	p := &Provider{
		current: newSampleCell(),
		logger:  slog.Default(),
		listen:  ListenUDP,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Reconfigure tears down the active backend and, if cfg is valid, builds
// the requested one. On error the provider is left inactive.
func (p *Provider) Reconfigure(cfg Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.teardownLocked(); err != nil {
		p.logger.Warn("gaze backend teardown failed", "error", err)
	}
	p.config = cfg

	var (
		b   Backend
		err error
	)
	switch cfg.Backend {
	case BackendNone, "":
		return nil
	case BackendDevice:
		if p.deviceAPI == nil {
			err = fmt.Errorf("no device API available: %w", ErrNoDevice)
			break
		}
		b, err = NewDeviceBackend(p.deviceAPI, p.logger)
	case BackendNetwork:
		addr, perr := ParseServer(cfg.Server)
		if perr != nil {
			err = perr
			break
		}
		b, err = NewNetworkBackend(addr, p.listen, p.logger)
	default:
		err = fmt.Errorf("unknown gaze backend %q", cfg.Backend)
	}
	if err != nil {
		p.logger.Debug("gaze backend inactive", "backend", cfg.Backend, "error", err)
		return err
	}

	p.backend = b
	p.logger.Info("gaze backend active", "backend", cfg.Backend)
	return nil
}

// PollOnce polls the active backend. It returns NoSignal when inactive.
func (p *Provider) PollOnce() Sample {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backend == nil {
		return p.current.Load()
	}
	s := p.backend.PollOnce()
	p.current.Store(s)
	return s
}

// CurrentSample returns the last polled sample. It never blocks.
func (p *Provider) CurrentSample() Sample {
	return p.current.Load()
}

// Active reports whether a backend is running.
func (p *Provider) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backend != nil
}

// Config returns the configuration last passed to Reconfigure.
func (p *Provider) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config
}

// Teardown releases the active backend, if any.
func (p *Provider) Teardown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.teardownLocked()
}

func (p *Provider) teardownLocked() error {
	p.current.Store(NoSignal)
	if p.backend == nil {
		return nil
	}
	b := p.backend
	p.backend = nil
	return b.Teardown()
}
