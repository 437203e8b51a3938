package mirror

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"
)

var ErrUnreachable = errors.New("mirror unreachable")

// Prober measures the round trip latency to a mirror host.
type Prober interface {
	Probe(ctx context.Context, host string) (time.Duration, error)
}

// TCPProber times Count TCP handshakes to host and returns their mean.
type TCPProber struct {
	Port   int
	Count  int
	Dialer *net.Dialer
}

func NewTCPProber(port, count int) *TCPProber {
	return &TCPProber{
		Port:   port,
		Count:  count,
		Dialer: &net.Dialer{Timeout: 5 * time.Second},
	}
}

// Probe dials host, or host:port when host carries no port of its own.
func (p *TCPProber) Probe(ctx context.Context, host string) (time.Duration, error) {
	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, strconv.Itoa(p.Port))
	}

	count := p.Count
	if count <= 0 {
		count = 1
	}

	dialer := p.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	var (
		total time.Duration
		ok    int
	)

	for range count {
		start := time.Now()

		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}

			continue
		}

		total += time.Since(start)
		ok++

		_ = conn.Close()
	}

	if ok == 0 {
		return 0, ErrUnreachable
	}

	return total / time.Duration(ok), nil
}
