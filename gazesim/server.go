package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/richinsley/goshadergaze/gaze"
)

// Config holds the simulator settings.
type Config struct {
	Address       string
	// Rate is the number of samples sent per second to each client.
	Rate          int
	// ClientTimeout drops clients that stopped sending liveness datagrams.
	ClientTimeout time.Duration
}

// DefaultConfig returns the simulator defaults.
func DefaultConfig() Config {
	return Config{
		Address:       "127.0.0.1:5005",
		Rate:          120,
		ClientTimeout: 10 * time.Second,
	}
}

// Server streams a Path to every client that announced itself.
type Server struct {
	config Config
	path   Path
	logger *slog.Logger

	conn      *net.UDPConn
	running   atomic.Bool
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu      sync.Mutex
	clients map[netip.AddrPort]time.Time

	sent atomic.Uint64
}

// NewServer binds the telemetry socket.
func NewServer(cfg Config, path Path, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Rate <= 0 {
		return nil, fmt.Errorf("invalid rate %d", cfg.Rate)
	}
	addr, err := net.ResolveUDPAddr("udp4", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	return &Server{
		config:  cfg,
		path:    path,
		logger:  logger,
		conn:    conn,
		clients: make(map[netip.AddrPort]time.Time),
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() netip.AddrPort {
	return s.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// Clients returns the number of live clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Sent returns the number of sample datagrams written.
func (s *Server) Sent() uint64 { return s.sent.Load() }

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("server already running")
	}
	s.wg.Add(1)
	go s.readLoop()
	defer s.Close()

	start := time.Now()
	ticker := time.NewTicker(time.Second / time.Duration(s.config.Rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.broadcast(s.path(now.Sub(start)), now)
		}
	}
}

func (s *Server) readLoop() {
	defer s.wg.Done()
	buf := make([]byte, 64)
	for {
		n, from, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Debug("read failed", "error", err)
			continue
		}
		if !bytes.Equal(buf[:n], gaze.LivenessDatagram) {
			s.logger.Debug("ignoring datagram", "from", from, "bytes", n)
			continue
		}
		from = netip.AddrPortFrom(from.Addr().Unmap(), from.Port())

		s.mu.Lock()
		_, known := s.clients[from]
		s.clients[from] = time.Now()
		s.mu.Unlock()
		if !known {
			s.logger.Info("client connected", "addr", from)
		}
	}
}

func (s *Server) broadcast(sample gaze.Sample, now time.Time) {
	data := gaze.EncodeSample(sample)

	s.mu.Lock()
	targets := make([]netip.AddrPort, 0, len(s.clients))
	for addr, seen := range s.clients {
		if now.Sub(seen) > s.config.ClientTimeout {
			delete(s.clients, addr)
			s.logger.Info("client timed out", "addr", addr)
			continue
		}
		targets = append(targets, addr)
	}
	s.mu.Unlock()

	for _, addr := range targets {
		if _, err := s.conn.WriteToUDPAddrPort(data, addr); err != nil {
			s.logger.Debug("send failed", "addr", addr, "error", err)
			continue
		}
		s.sent.Add(1)
	}
}

// Close stops the reader and releases the socket.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
		s.wg.Wait()
		s.running.Store(false)
	})
	return err
}
