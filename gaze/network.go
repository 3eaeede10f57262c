package gaze

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"
)

const (
	// MaxDatagrams bounds the datagrams consumed per poll.
	MaxDatagrams = 100
	// HeartbeatTicks is the number of polls between liveness datagrams.
	HeartbeatTicks = 100

	queueSize   = 1024
	readBufSize = 64

	readErrorBackoff = 10 * time.Millisecond
)

// PacketConn is the part of *net.UDPConn the network backend uses.
type PacketConn interface {
	ReadFromUDPAddrPort(b []byte) (int, netip.AddrPort, error)
	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)
	LocalAddr() net.Addr
	Close() error
}

// ListenFunc opens the client socket.
type ListenFunc func() (PacketConn, error)

// ListenUDP opens an IPv4 UDP socket on an ephemeral port.
func ListenUDP() (PacketConn, error) {
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type datagram struct {
	from netip.AddrPort
	data []byte
}

// NetworkBackend receives samples from a telemetry server over UDP.
//
// A reader goroutine moves datagrams from the socket into a bounded queue
// and drops them when the queue is full, so PollOnce never blocks.
type NetworkBackend struct {
	server netip.AddrPort
	conn   PacketConn
	queue  chan datagram
	wg     sync.WaitGroup
	once   sync.Once

	ticks   int
	smooth  Sample
	current *sampleCell
	logger  *slog.Logger
}

// NewNetworkBackend opens a socket with listen and announces it to server.
func NewNetworkBackend(server netip.AddrPort, listen ListenFunc, logger *slog.Logger) (*NetworkBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if listen == nil {
		listen = ListenUDP
	}
	if !server.IsValid() {
		return nil, ErrInvalidServer
	}
	server = netip.AddrPortFrom(server.Addr().Unmap(), server.Port())

	conn, err := listen()
	if err != nil {
		return nil, fmt.Errorf("failed to open gaze socket: %w", err)
	}

	b := &NetworkBackend{
		server:  server,
		conn:    conn,
		queue:   make(chan datagram, queueSize),
		smooth:  NoSignal,
		current: newSampleCell(),
		logger:  logger.With("server", server.String()),
	}

	b.wg.Add(1)
	go b.readLoop()

	b.sendLiveness()
	b.logger.Info("gaze client listening", "local", conn.LocalAddr().String())
	return b, nil
}

func (b *NetworkBackend) readLoop() {
	defer b.wg.Done()
	buf := make([]byte, readBufSize)
	for {
		n, from, err := b.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			b.logger.Debug("gaze socket read failed", "error", err)
			time.Sleep(readErrorBackoff)
			continue
		}
		d := datagram{from: from, data: append([]byte(nil), buf[:n]...)}
		select {
		case b.queue <- d:
		default:
			// queue full, drop
		}
	}
}

func (b *NetworkBackend) sendLiveness() {
	if _, err := b.conn.WriteToUDPAddrPort(LivenessDatagram, b.server); err != nil {
		b.logger.Debug("failed to send liveness datagram", "error", err)
	}
}

// accepts reports whether d is a sample from the configured server.
func (b *NetworkBackend) accepts(d datagram) bool {
	if len(d.data) != SampleSize {
		return false
	}
	from := netip.AddrPortFrom(d.from.Addr().Unmap(), d.from.Port())
	return from == b.server
}

// PollOnce consumes up to MaxDatagrams queued datagrams, then advances the
// heartbeat counter.
func (b *NetworkBackend) PollOnce() Sample {
drain:
	for i := 0; i < MaxDatagrams; i++ {
		select {
		case d := <-b.queue:
			if !b.accepts(d) {
				continue
			}
			s, err := DecodeSample(d.data)
			if err != nil || !s.Finite() {
				continue
			}
			b.smooth = Smooth(b.smooth, s)
			b.current.Store(b.smooth)
		default:
			break drain
		}
	}

	b.ticks++
	if b.ticks >= HeartbeatTicks {
		b.sendLiveness()
		b.ticks = 0
	}
	return b.current.Load()
}

func (b *NetworkBackend) CurrentSample() Sample {
	return b.current.Load()
}

// Server returns the configured server address.
func (b *NetworkBackend) Server() netip.AddrPort { return b.server }

// TicksSinceHeartbeat returns the polls since the last liveness datagram.
func (b *NetworkBackend) TicksSinceHeartbeat() int { return b.ticks }

// Pending returns the number of queued datagrams.
func (b *NetworkBackend) Pending() int { return len(b.queue) }

// Teardown closes the socket and waits for the reader goroutine.
func (b *NetworkBackend) Teardown() error {
	var err error
	b.once.Do(func() {
		err = b.conn.Close()
		b.wg.Wait()
		for len(b.queue) > 0 {
			<-b.queue
		}
	})
	return err
}
