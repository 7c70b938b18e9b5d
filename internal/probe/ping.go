package probe

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/corebit/corebit-server/internal/models"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// PingProber sends Attempts ICMP echo requests one after another (they are not
// sent concurrently) and falls back to a raw TCP connect against a handful of
// common ports when ICMP is filtered, per spec §4.1.5. It reports the minimum
// observed RTT across attempts.
type PingProber struct {
	Attempts int
	Timeout  time.Duration
}

func NewPingProber() *PingProber {
	return &PingProber{Attempts: 2, Timeout: 2 * time.Second}
}

var tcpFallbackPorts = []string{"80", "443", "22"}

func (p *PingProber) Probe(ctx context.Context, device *models.Device, _ map[string]string) Sample {
	if rtt, ok := p.icmpPing(ctx, device.Address); ok {
		return Sample{Success: true, RTT: rtt}
	}
	if rtt, ok := p.tcpConnectFallback(ctx, device.Address); ok {
		return Sample{Success: true, RTT: rtt}
	}
	return failure(ErrTransientNetwork, fmt.Errorf("host %s unreachable by icmp and tcp fallback", device.Address))
}

// icmpPing requires raw-socket privilege (CAP_NET_RAW or root); callers
// without it always fall through to the TCP fallback.
func (p *PingProber) icmpPing(ctx context.Context, address string) (time.Duration, bool) {
	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return 0, false
	}
	defer conn.Close()

	dst, err := net.ResolveIPAddr("ip4", address)
	if err != nil {
		return 0, false
	}

	var best time.Duration
	found := false
	for i := 0; i < p.Attempts; i++ {
		deadline := time.Now().Add(p.Timeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}

		msg := icmp.Message{
			Type: ipv4.ICMPTypeEcho,
			Code: 0,
			Body: &icmp.Echo{ID: os.Getpid() & 0xffff, Seq: i + 1, Data: []byte("corebit")},
		}
		wire, err := msg.Marshal(nil)
		if err != nil {
			continue
		}

		start := time.Now()
		if _, err := conn.WriteTo(wire, dst); err != nil {
			continue
		}
		conn.SetReadDeadline(deadline)

		reply := make([]byte, 512)
		n, _, err := conn.ReadFrom(reply)
		if err != nil {
			continue
		}
		parsed, err := icmp.ParseMessage(1, reply[:n])
		if err != nil || parsed.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		rtt := time.Since(start)
		if !found || rtt < best {
			best = rtt
			found = true
		}
	}
	return best, found
}

func (p *PingProber) tcpConnectFallback(ctx context.Context, address string) (time.Duration, bool) {
	dialer := net.Dialer{Timeout: p.Timeout}
	var best time.Duration
	found := false
	for _, port := range tcpFallbackPorts {
		start := time.Now()
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(address, port))
		if err != nil {
			continue
		}
		conn.Close()
		rtt := time.Since(start)
		if !found || rtt < best {
			best = rtt
			found = true
		}
	}
	return best, found
}
