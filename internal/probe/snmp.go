package probe

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/corebit/corebit-server/internal/models"
	"github.com/gosnmp/gosnmp"
)

// Well-known MIB-II / HOST-RESOURCES OIDs the SNMP Prober walks on every
// cycle. Per-interface counters are walked separately since their indices
// vary per device.
const (
	oidSysDescr   = ".1.3.6.1.2.1.1.1.0"
	oidSysName    = ".1.3.6.1.2.1.1.5.0"
	oidSysUpTime  = ".1.3.6.1.2.1.1.3.0"
	oidHrCPULoad  = ".1.3.6.1.2.1.25.3.3.1.2"
	oidHrMemAvail = ".1.3.6.1.2.1.25.2.3.1.6"
	oidHrMemSize  = ".1.3.6.1.2.1.25.2.3.1.5"
	oidIfDescr    = ".1.3.6.1.2.1.2.2.1.2"
	oidIfOperStat = ".1.3.6.1.2.1.2.2.1.8"
	oidIfHCInOct  = ".1.3.6.1.2.1.31.1.1.1.6"
	oidIfHCOutOct = ".1.3.6.1.2.1.31.1.1.1.10"
	oidIfInOctets = ".1.3.6.1.2.1.2.2.1.10"
	oidIfOutOctets = ".1.3.6.1.2.1.2.2.1.16"
)

// SNMPProber speaks SNMP v1/v2c/v3 via gosnmp, preferring the 64-bit
// ifHCInOctets/ifHCOutOctets counters (IF-MIB) over the 32-bit ifInOctets
// when the agent exposes them, per spec §4.1.2.
type SNMPProber struct{}

func NewSNMPProber() *SNMPProber { return &SNMPProber{} }

func (p *SNMPProber) Probe(ctx context.Context, device *models.Device, creds map[string]string) Sample {
	start := time.Now()

	client, err := buildSNMPClient(device.Address, creds)
	if err != nil {
		return failure(ErrAuthFailure, err)
	}
	if err := client.Connect(); err != nil {
		return failure(ErrTransientNetwork, fmt.Errorf("snmp connect: %w", err))
	}
	defer client.Conn.Close()

	deadline, ok := ctx.Deadline()
	if ok {
		client.Timeout = time.Until(deadline)
	}

	result, err := client.Get([]string{oidSysDescr, oidSysName, oidSysUpTime})
	if err != nil {
		return failure(ErrTransientNetwork, fmt.Errorf("snmp get: %w", err))
	}

	sample := Sample{Success: true, RTT: time.Since(start)}
	for _, v := range result.Variables {
		switch v.Name {
		case oidSysDescr:
			if s, ok := v.Value.([]byte); ok {
				sample.Model = string(s)
			}
		case oidSysName:
			if s, ok := v.Value.([]byte); ok {
				sample.Identity = string(s)
			}
		case oidSysUpTime:
			if ticks, ok := v.Value.(uint32); ok {
				sample.Uptime = time.Duration(ticks) * 10 * time.Millisecond
			}
		}
	}

	cpu, err := client.WalkAll(oidHrCPULoad)
	if err == nil && len(cpu) > 0 {
		var sum, n float64
		for _, v := range cpu {
			sum += float64(gosnmp.ToBigInt(v.Value).Int64())
			n++
		}
		if n > 0 {
			sample.CPUPercent = sum / n
		}
	}

	sample.Ports = p.walkInterfaces(client)
	sample.InOctets, sample.OutOctets, sample.CounterBits = p.primaryCounters(client)

	return sample
}

func (p *SNMPProber) walkInterfaces(client *gosnmp.GoSNMP) []models.Port {
	descrs, err := client.WalkAll(oidIfDescr)
	if err != nil {
		return nil
	}
	statuses, _ := client.WalkAll(oidIfOperStat)
	statusByIdx := map[string]string{}
	for _, v := range statuses {
		idx := strings.TrimPrefix(v.Name, oidIfOperStat+".")
		state := "down"
		if n, ok := v.Value.(int); ok && n == 1 {
			state = "up"
		}
		statusByIdx[idx] = state
	}

	ports := make([]models.Port, 0, len(descrs))
	for _, v := range descrs {
		idx := strings.TrimPrefix(v.Name, oidIfDescr+".")
		name, _ := v.Value.([]byte)
		idxNum, _ := strconv.Atoi(idx)
		ports = append(ports, models.Port{
			Name:      string(name),
			Status:    statusByIdx[idx],
			SNMPIndex: idxNum,
		})
	}
	return ports
}

// primaryCounters prefers the 64-bit HC counters over the 32-bit fallback,
// summing across all interfaces to approximate total link throughput when the
// device represents a single logical link.
func (p *SNMPProber) primaryCounters(client *gosnmp.GoSNMP) (in, out uint64, bits int) {
	if inVars, err := client.WalkAll(oidIfHCInOct); err == nil && len(inVars) > 0 {
		outVars, _ := client.WalkAll(oidIfHCOutOct)
		return sumCounters(inVars), sumCounters(outVars), 64
	}
	inVars, err := client.WalkAll(oidIfInOctets)
	if err != nil {
		return 0, 0, 0
	}
	outVars, _ := client.WalkAll(oidIfOutOctets)
	return sumCounters(inVars), sumCounters(outVars), 32
}

func sumCounters(vars []gosnmp.SnmpPDU) uint64 {
	var total uint64
	for _, v := range vars {
		total += gosnmp.ToBigInt(v.Value).Uint64()
	}
	return total
}

func buildSNMPClient(address string, creds map[string]string) (*gosnmp.GoSNMP, error) {
	client := &gosnmp.GoSNMP{
		Target:  address,
		Port:    161,
		Timeout: 5 * time.Second,
		Retries: 1,
	}

	switch stringOr(creds, "version", "2c") {
	case "1":
		client.Version = gosnmp.Version1
		client.Community = stringOr(creds, "community", "public")
	case "3":
		client.Version = gosnmp.Version3
		client.SecurityModel = gosnmp.UserSecurityModel
		client.MsgFlags = securityLevel(creds["authProtocol"], creds["privProtocol"])
		client.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 creds["username"],
			AuthenticationProtocol:   authProtocol(creds["authProtocol"]),
			AuthenticationPassphrase: creds["authPassword"],
			PrivacyProtocol:          privProtocol(creds["privProtocol"]),
			PrivacyPassphrase:        creds["privPassword"],
		}
	default:
		client.Version = gosnmp.Version2c
		client.Community = stringOr(creds, "community", "public")
	}
	return client, nil
}

func securityLevel(auth, priv string) gosnmp.SnmpV3MsgFlags {
	switch {
	case priv != "":
		return gosnmp.AuthPriv
	case auth != "":
		return gosnmp.AuthNoPriv
	default:
		return gosnmp.NoAuthNoPriv
	}
}

func authProtocol(name string) gosnmp.SnmpV3AuthProtocol {
	switch strings.ToUpper(name) {
	case "SHA":
		return gosnmp.SHA
	case "MD5":
		return gosnmp.MD5
	default:
		return gosnmp.NoAuth
	}
}

func privProtocol(name string) gosnmp.SnmpV3PrivProtocol {
	switch strings.ToUpper(name) {
	case "AES":
		return gosnmp.AES
	case "DES":
		return gosnmp.DES
	default:
		return gosnmp.NoPriv
	}
}
