package probe

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/corebit/corebit-server/internal/models"
)

// RouterOSProber speaks the MikroTik RouterOS API protocol (binary
// length-prefixed "sentences" over TCP, port 8728/8729-TLS). Every Nth cycle
// it additionally runs "/interface ethernet monitor" for link-speed autoneg
// detail (spec §4.1.1's quick vs detailed probe split); all other cycles only
// fetch identity, resource and interface counters.
type RouterOSProber struct {
	DetailEvery int // run the detailed probe every Nth call; 0 disables it
	calls       map[string]int
}

func NewRouterOSProber() *RouterOSProber {
	return &RouterOSProber{DetailEvery: 5, calls: make(map[string]int)}
}

func (p *RouterOSProber) Probe(ctx context.Context, device *models.Device, creds map[string]string) Sample {
	start := time.Now()
	port := stringOr(creds, "port", "8728")
	addr := net.JoinHostPort(device.Address, port)

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return failure(ErrTransientNetwork, fmt.Errorf("routeros dial: %w", err))
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	client := &routerosClient{conn: conn, r: bufio.NewReader(conn)}
	if err := client.login(stringOr(creds, "username", "admin"), creds["password"]); err != nil {
		return failure(ErrAuthFailure, fmt.Errorf("routeros login: %w", err))
	}

	identity, err := client.runSingle("/system/identity/print")
	if err != nil {
		return failure(ErrProtocolError, fmt.Errorf("identity: %w", err))
	}
	resource, err := client.runSingle("/system/resource/print")
	if err != nil {
		return failure(ErrProtocolError, fmt.Errorf("resource: %w", err))
	}
	ifaces, err := client.run("/interface/print")
	if err != nil {
		return failure(ErrProtocolError, fmt.Errorf("interfaces: %w", err))
	}

	sample := Sample{Success: true, RTT: time.Since(start)}
	sample.Identity = identity["name"]
	sample.Model = resource["board-name"]
	sample.Version = resource["version"]
	sample.Uptime = parseRouterOSDuration(resource["uptime"])
	sample.CPUPercent = parseFloat(resource["cpu-load"])
	sample.MemPercent = parseMemPercent(resource)

	var totalIn, totalOut uint64
	for _, row := range ifaces {
		status := "down"
		if row["running"] == "true" {
			status = "up"
		}
		sample.Ports = append(sample.Ports, models.Port{
			Name:        row["name"],
			DefaultName: row["default-name"],
			Status:      status,
			MAC:         row["mac-address"],
		})
		totalIn += parseUint(row["rx-byte"])
		totalOut += parseUint(row["tx-byte"])
	}
	sample.InOctets, sample.OutOctets, sample.CounterBits = totalIn, totalOut, 64

	if p.DetailEvery > 0 {
		n := p.calls[device.ID] + 1
		p.calls[device.ID] = n
		if n%p.DetailEvery == 0 {
			_, _ = client.run("/interface/ethernet/monitor", "=once=", "=numbers=0")
		}
	}

	return sample
}

// routerosClient implements the minimal request/reply subset of the API
// protocol: each sentence is a sequence of length-prefixed words terminated
// by a zero-length word.
type routerosClient struct {
	conn net.Conn
	r    *bufio.Reader
}

func (c *routerosClient) login(user, pass string) error {
	reply, err := c.run("/login", "=name="+user, "=password="+pass)
	if err != nil {
		return err
	}
	if len(reply) > 0 && reply[0]["ret"] != "" {
		return fmt.Errorf("legacy MD5 challenge login not supported")
	}
	return nil
}

func (c *routerosClient) runSingle(cmd string, args ...string) (map[string]string, error) {
	rows, err := c.run(cmd, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return map[string]string{}, nil
	}
	return rows[0], nil
}

func (c *routerosClient) run(cmd string, args ...string) ([]map[string]string, error) {
	words := append([]string{cmd}, args...)
	if err := c.writeSentence(words); err != nil {
		return nil, err
	}

	var rows []map[string]string
	for {
		sentence, err := c.readSentence()
		if err != nil {
			return nil, err
		}
		if len(sentence) == 0 {
			continue
		}
		switch sentence[0] {
		case "!done":
			return rows, nil
		case "!trap", "!fatal":
			return nil, fmt.Errorf("routeros error: %s", strings.Join(sentence[1:], " "))
		case "!re":
			row := map[string]string{}
			for _, w := range sentence[1:] {
				if k, v, ok := strings.Cut(strings.TrimPrefix(w, "="), "="); ok {
					row[k] = v
				}
			}
			rows = append(rows, row)
		}
	}
}

func (c *routerosClient) writeSentence(words []string) error {
	for _, w := range words {
		if err := c.writeWord(w); err != nil {
			return err
		}
	}
	return c.writeWord("")
}

func (c *routerosClient) writeWord(word string) error {
	length := encodeLength(len(word))
	if _, err := c.conn.Write(length); err != nil {
		return err
	}
	_, err := c.conn.Write([]byte(word))
	return err
}

func (c *routerosClient) readSentence() ([]string, error) {
	var words []string
	for {
		n, err := c.readLength()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return words, nil
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(c.r, buf); err != nil {
			return nil, err
		}
		words = append(words, string(buf))
	}
}

func (c *routerosClient) readLength() (int, error) {
	b0, err := c.r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch {
	case b0&0x80 == 0x00:
		return int(b0), nil
	case b0&0xC0 == 0x80:
		b1, err := c.r.ReadByte()
		if err != nil {
			return 0, err
		}
		return int(b0&^0xC0)<<8 | int(b1), nil
	case b0&0xE0 == 0xC0:
		rest := make([]byte, 2)
		if _, err := io.ReadFull(c.r, rest); err != nil {
			return 0, err
		}
		return int(b0&^0xE0)<<16 | int(rest[0])<<8 | int(rest[1]), nil
	case b0&0xF0 == 0xE0:
		rest := make([]byte, 3)
		if _, err := io.ReadFull(c.r, rest); err != nil {
			return 0, err
		}
		return int(b0&^0xF0)<<24 | int(rest[0])<<16 | int(rest[1])<<8 | int(rest[2]), nil
	default:
		rest := make([]byte, 4)
		if _, err := io.ReadFull(c.r, rest); err != nil {
			return 0, err
		}
		return int(binary.BigEndian.Uint32(rest)), nil
	}
}


func encodeLength(l int) []byte {
	switch {
	case l < 0x80:
		return []byte{byte(l)}
	case l < 0x4000:
		l |= 0x8000
		return []byte{byte(l >> 8), byte(l)}
	case l < 0x200000:
		l |= 0xC00000
		return []byte{byte(l >> 16), byte(l >> 8), byte(l)}
	case l < 0x10000000:
		l |= 0xE0000000
		return []byte{byte(l >> 24), byte(l >> 16), byte(l >> 8), byte(l)}
	default:
		return []byte{0xF0, byte(l >> 24), byte(l >> 16), byte(l >> 8), byte(l)}
	}
}

func parseRouterOSDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	var total time.Duration
	var num strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			num.WriteRune(r)
			continue
		}
		n, _ := strconv.Atoi(num.String())
		num.Reset()
		switch r {
		case 'w':
			total += time.Duration(n) * 7 * 24 * time.Hour
		case 'd':
			total += time.Duration(n) * 24 * time.Hour
		case 'h':
			total += time.Duration(n) * time.Hour
		case 'm':
			total += time.Duration(n) * time.Minute
		case 's':
			total += time.Duration(n) * time.Second
		}
	}
	return total
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func parseUint(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}

func parseMemPercent(resource map[string]string) float64 {
	total := parseFloat(resource["total-memory"])
	free := parseFloat(resource["free-memory"])
	if total <= 0 {
		return 0
	}
	return (1 - free/total) * 100
}
