package qos

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultQoSPort is the port QoS beacons listen on.
const DefaultQoSPort = 3075

// resolveTimeout bounds a host lookup. It is separate from the ping timeout
// so a cold lookup is never counted against a region.
const resolveTimeout = 5 * time.Second

var errBadEcho = errors.New("unexpected QoS echo")

// Pinger measures the round-trip time to an endpoint. Implementations must
// honour the deadline carried by ctx.
type Pinger interface {
	Ping(ctx context.Context, endpoint Endpoint) (time.Duration, error)
}

// PingerFunc adapts an ordinary function to the Pinger interface.
type PingerFunc func(ctx context.Context, endpoint Endpoint) (time.Duration, error)

func (f PingerFunc) Ping(ctx context.Context, endpoint Endpoint) (time.Duration, error) {
	return f(ctx, endpoint)
}

// UDPPinger sends a QoS echo datagram and waits for the beacon's reply.
// The request starts with 0xFFFF and the reply must start with 0x0000.
type UDPPinger struct {
	Port  int
	seq   atomic.Uint32
	addrs addrCache
}

// NewUDPPinger creates a pinger that targets the given beacon port.
func NewUDPPinger(port int) *UDPPinger {
	if port <= 0 {
		port = DefaultQoSPort
	}
	return &UDPPinger{Port: port}
}

func (p *UDPPinger) Ping(ctx context.Context, endpoint Endpoint) (time.Duration, error) {
	addr, err := p.addrs.resolve(ctx, endpoint.URL, p.Port)
	if err != nil {
		return 0, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return 0, fmt.Errorf("dial %s: %w", endpoint.URL, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return 0, err
		}
	}

	req := make([]byte, 6)
	binary.BigEndian.PutUint16(req[0:2], 0xFFFF)
	binary.BigEndian.PutUint32(req[2:6], p.seq.Add(1))

	start := time.Now()
	if _, err := conn.Write(req); err != nil {
		return 0, fmt.Errorf("write %s: %w", endpoint.URL, err)
	}

	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", endpoint.URL, err)
	}
	if n < 2 || binary.BigEndian.Uint16(buf[0:2]) != 0x0000 {
		return 0, errBadEcho
	}
	return time.Since(start), nil
}

// TCPPinger measures the time needed to complete a TCP handshake.
type TCPPinger struct {
	Port  int
	addrs addrCache
}

// NewTCPPinger creates a pinger that dials the given port.
func NewTCPPinger(port int) *TCPPinger {
	return &TCPPinger{Port: port}
}

func (p *TCPPinger) Ping(ctx context.Context, endpoint Endpoint) (time.Duration, error) {
	addr, err := p.addrs.resolve(ctx, endpoint.URL, p.Port)
	if err != nil {
		return 0, err
	}

	var d net.Dialer
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("connection failed: %w", err)
	}
	conn.Close()
	return time.Since(start), nil
}

// hostPort appends the default port when the endpoint URL carries none.
func hostPort(addr string, port int) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(port))
}

// addrCache remembers the resolved address of each endpoint so only the
// first ping pays for a lookup, and that lookup runs outside the ping deadline.
type addrCache struct {
	mu         sync.Mutex
	addrs      map[string]string
	lookupHost func(ctx context.Context, host string) ([]string, error)
}

func (c *addrCache) resolve(ctx context.Context, url string, port int) (string, error) {
	target := hostPort(url, port)
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return "", err
	}
	if net.ParseIP(host) != nil {
		return target, nil
	}

	c.mu.Lock()
	resolved, ok := c.addrs[target]
	lookup := c.lookupHost
	c.mu.Unlock()
	if ok {
		return resolved, nil
	}
	if lookup == nil {
		lookup = net.DefaultResolver.LookupHost
	}

	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
	defer cancel()
	ips, err := lookup(lookupCtx, host)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(ips) == 0 {
		return "", fmt.Errorf("resolve %s: no addresses", host)
	}

	resolved = net.JoinHostPort(ips[0], portStr)
	c.mu.Lock()
	if c.addrs == nil {
		c.addrs = make(map[string]string)
	}
	c.addrs[target] = resolved
	c.mu.Unlock()
	return resolved, nil
}
