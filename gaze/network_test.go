package gaze

import (
	"errors"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var testServer = netip.MustParseAddrPort("10.0.0.5:7777")

// fakeConn is an in-memory PacketConn. Datagrams pushed with deliver are
// returned by ReadFromUDPAddrPort in order.
type fakeConn struct {
	in     chan datagram
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	sent   [][]byte
	sentTo []netip.AddrPort
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan datagram, 4096), closed: make(chan struct{})}
}

func (c *fakeConn) deliver(from netip.AddrPort, data []byte) {
	c.in <- datagram{from: from, data: data}
}

func (c *fakeConn) ReadFromUDPAddrPort(b []byte) (int, netip.AddrPort, error) {
	select {
	case d := <-c.in:
		return copy(b, d.data), d.from, nil
	case <-c.closed:
		return 0, netip.AddrPort{}, net.ErrClosed
	}
}

func (c *fakeConn) WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, append([]byte(nil), b...))
	c.sentTo = append(c.sentTo, addr)
	return len(b), nil
}

func (c *fakeConn) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func listenOn(c *fakeConn) ListenFunc {
	return func() (PacketConn, error) { return c, nil }
}

func newTestBackend(t *testing.T) (*NetworkBackend, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	b, err := NewNetworkBackend(testServer, listenOn(conn), nil)
	if err != nil {
		t.Fatalf("NewNetworkBackend() failed: %v", err)
	}
	t.Cleanup(func() { b.Teardown() })
	return b, conn
}

// waitQueued waits for the reader goroutine to move every delivered
// datagram into the backend queue.
func waitQueued(t *testing.T, b *NetworkBackend, conn *fakeConn, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(conn.in) > 0 || b.Pending() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d queued datagrams, have %d", n, b.Pending())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNetworkAnnouncesOnActivation(t *testing.T) {
	_, conn := newTestBackend(t)
	if conn.sentCount() != 1 {
		t.Fatalf("expected one liveness datagram, got %d", conn.sentCount())
	}
	if string(conn.sent[0]) != "connect\n\x00" || conn.sentTo[0] != testServer {
		t.Errorf("unexpected announcement %q to %s", conn.sent[0], conn.sentTo[0])
	}
}

func TestNetworkDatagramFiltering(t *testing.T) {
	b, conn := newTestBackend(t)

	good := EncodeSample(Sample{0.4, 0.6})
	conn.deliver(testServer, good[:7])
	conn.deliver(testServer, append(good, 0))
	conn.deliver(netip.MustParseAddrPort("10.0.0.5:7778"), good)
	conn.deliver(netip.MustParseAddrPort("10.0.0.6:7777"), good)
	waitQueued(t, b, conn, 4)

	if s := b.PollOnce(); !s.IsNoSignal() {
		t.Fatalf("foreign or malformed datagrams changed the sample: %v", s)
	}

	conn.deliver(testServer, good)
	waitQueued(t, b, conn, 1)
	if s := b.PollOnce(); s != (Sample{0.4, 0.6}) {
		t.Fatalf("first accepted sample should be verbatim, got %v", s)
	}

	conn.deliver(testServer, EncodeSample(Sample{0.9, 0.1}))
	waitQueued(t, b, conn, 1)
	want := Smooth(Sample{0.4, 0.6}, Sample{0.9, 0.1})
	if s := b.PollOnce(); s != want {
		t.Errorf("smoothed sample = %v, wanted %v", s, want)
	}
	if b.CurrentSample() != want {
		t.Errorf("CurrentSample() = %v, wanted %v", b.CurrentSample(), want)
	}
}

func TestNetworkAcceptsMappedSender(t *testing.T) {
	b, conn := newTestBackend(t)
	mapped := netip.AddrPortFrom(netip.AddrFrom16(testServer.Addr().As16()), testServer.Port())
	conn.deliver(mapped, EncodeSample(Sample{0.1, 0.2}))
	waitQueued(t, b, conn, 1)
	if s := b.PollOnce(); s != (Sample{0.1, 0.2}) {
		t.Errorf("IPv4-mapped sender rejected: %v", s)
	}
}

func TestNetworkHeartbeatCadence(t *testing.T) {
	b, conn := newTestBackend(t)

	for i := 0; i < HeartbeatTicks-1; i++ {
		b.PollOnce()
	}
	if conn.sentCount() != 1 {
		t.Fatalf("heartbeat sent early after %d ticks", HeartbeatTicks-1)
	}
	if b.TicksSinceHeartbeat() != HeartbeatTicks-1 {
		t.Fatalf("ticks = %d", b.TicksSinceHeartbeat())
	}

	b.PollOnce()
	if conn.sentCount() != 2 {
		t.Fatalf("expected heartbeat after %d ticks, sent %d", HeartbeatTicks, conn.sentCount())
	}
	if b.TicksSinceHeartbeat() != 0 {
		t.Errorf("ticks not reset: %d", b.TicksSinceHeartbeat())
	}
}

func TestNetworkDrainBound(t *testing.T) {
	b, conn := newTestBackend(t)

	for i := 0; i < 1000; i++ {
		conn.deliver(testServer, EncodeSample(Sample{0.5, 0.5}))
	}
	waitQueued(t, b, conn, 1000)

	b.PollOnce()
	if got := b.Pending(); got != 1000-MaxDatagrams {
		t.Errorf("one poll consumed %d datagrams, wanted %d", 1000-got, MaxDatagrams)
	}
}

func TestNetworkTeardownIsSynchronous(t *testing.T) {
	conn := newFakeConn()
	b, err := NewNetworkBackend(testServer, listenOn(conn), nil)
	if err != nil {
		t.Fatal(err)
	}
	conn.deliver(testServer, EncodeSample(Sample{0.5, 0.5}))
	waitQueued(t, b, conn, 1)

	if err := b.Teardown(); err != nil {
		t.Fatalf("Teardown() failed: %v", err)
	}
	if !conn.isClosed() {
		t.Error("socket left open")
	}
	if b.Pending() != 0 {
		t.Error("queue not drained")
	}
	if err := b.Teardown(); err != nil {
		t.Errorf("second Teardown() failed: %v", err)
	}
}

// failingConn returns a read error other than net.ErrClosed until closed.
type failingConn struct {
	*fakeConn
	reads atomic.Int64
}

func (c *failingConn) ReadFromUDPAddrPort(b []byte) (int, netip.AddrPort, error) {
	if c.isClosed() {
		return 0, netip.AddrPort{}, net.ErrClosed
	}
	c.reads.Add(1)
	return 0, netip.AddrPort{}, errors.New("connection refused")
}

func TestNetworkReadErrorsBackOff(t *testing.T) {
	conn := &failingConn{fakeConn: newFakeConn()}
	b, err := NewNetworkBackend(testServer, func() (PacketConn, error) { return conn, nil }, nil)
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)
	if err := b.Teardown(); err != nil {
		t.Fatal(err)
	}
	// 100ms at one read per backoff interval, with slack for scheduling
	if n := conn.reads.Load(); n == 0 || n > 50 {
		t.Errorf("reader made %d reads in 100ms", n)
	}
}

func TestNetworkListenFailure(t *testing.T) {
	boom := errors.New("no sockets")
	_, err := NewNetworkBackend(testServer, func() (PacketConn, error) { return nil, boom }, nil)
	if !errors.Is(err, boom) {
		t.Errorf("expected listen error, got %v", err)
	}
}

func TestNetworkRealSocket(t *testing.T) {
	server, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Skipf("no loopback UDP: %v", err)
	}
	defer server.Close()
	local := server.LocalAddr().(*net.UDPAddr).AddrPort()
	addr := netip.AddrPortFrom(local.Addr().Unmap(), local.Port())

	b, err := NewNetworkBackend(addr, ListenUDP, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Teardown()

	buf := make([]byte, 64)
	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, client, err := server.ReadFromUDPAddrPort(buf)
	if err != nil {
		t.Fatalf("server never heard the liveness datagram: %v", err)
	}
	if string(buf[:n]) != string(LivenessDatagram) {
		t.Fatalf("server received %q", buf[:n])
	}

	client = netip.AddrPortFrom(client.Addr().Unmap(), client.Port())
	if _, err := server.WriteToUDPAddrPort(EncodeSample(Sample{0.75, 0.25}), client); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for b.PollOnce().IsNoSignal() {
		if time.Now().After(deadline) {
			t.Fatal("sample never arrived")
		}
		time.Sleep(time.Millisecond)
	}
	if s := b.CurrentSample(); s != (Sample{0.75, 0.25}) {
		t.Errorf("CurrentSample() = %v", s)
	}
}
