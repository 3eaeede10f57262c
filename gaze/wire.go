package gaze

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net/netip"
	"strings"
)

// LivenessDatagram is sent to the telemetry server so it learns where to
// stream samples. It carries the trailing NUL the server expects.
var LivenessDatagram = []byte("connect\n\x00")

// SampleSize is the size of a telemetry datagram: two float32 values.
const SampleSize = 8

var (
	// ErrInvalidServer is returned for a server setting that is not ip:port.
	ErrInvalidServer = errors.New("invalid gaze server address")
	// ErrBadDatagram is returned by DecodeSample for anything but SampleSize bytes.
	ErrBadDatagram = errors.New("malformed gaze datagram")
)

// EncodeSample writes s in the telemetry wire format.
func EncodeSample(s Sample) []byte {
	b := make([]byte, SampleSize)
	binary.NativeEndian.PutUint32(b[0:4], math.Float32bits(s.X))
	binary.NativeEndian.PutUint32(b[4:8], math.Float32bits(s.Y))
	return b
}

// DecodeSample parses a telemetry datagram.
func DecodeSample(b []byte) (Sample, error) {
	if len(b) != SampleSize {
		return NoSignal, fmt.Errorf("%w: %d bytes", ErrBadDatagram, len(b))
	}
	return Sample{
		X: math.Float32frombits(binary.NativeEndian.Uint32(b[0:4])),
		Y: math.Float32frombits(binary.NativeEndian.Uint32(b[4:8])),
	}, nil
}

// ParseServer parses an IPv4 "a.b.c.d:port" server setting.
func ParseServer(s string) (netip.AddrPort, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.AddrPort{}, fmt.Errorf("%w: empty", ErrInvalidServer)
	}
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %v", ErrInvalidServer, err)
	}
	if !ap.Addr().Is4() && !ap.Addr().Is4In6() {
		return netip.AddrPort{}, fmt.Errorf("%w: %s is not IPv4", ErrInvalidServer, s)
	}
	if ap.Port() == 0 {
		return netip.AddrPort{}, fmt.Errorf("%w: missing port", ErrInvalidServer)
	}
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
}
