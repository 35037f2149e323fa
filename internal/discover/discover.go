// Package discover implements the network-wide console discovery sweep:
// a one-shot broadcast-style probe, deliberately mechanical, with no
// retry policy or bulk engine involved.
package discover

import (
	"net"
	"time"

	"github.com/gravwell/x32mgr/internal/osc"
)

// Console is one discovered console's /xinfo reply plus the source
// address it answered from.
type Console struct {
	IP       string
	Name     string
	Model    string
	Firmware string
}

// Sweep broadcasts /xinfo to subnet's broadcast address on the console's
// port and collects replies for window before returning whatever arrived.
func Sweep(subnetBroadcastIP string, port int, window time.Duration) ([]Console, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(window))

	buf, err := osc.Encode("/xinfo", nil)
	if err != nil {
		return nil, err
	}
	raddr := &net.UDPAddr{IP: net.ParseIP(subnetBroadcastIP), Port: port}
	if _, err := conn.WriteToUDP(buf, raddr); err != nil {
		return nil, err
	}

	var found []Console
	recvBuf := make([]byte, 65535)
	for {
		n, src, err := conn.ReadFromUDP(recvBuf)
		if err != nil {
			break // deadline reached, or a transient read error; either way we stop collecting
		}
		msgs, err := osc.Decode(recvBuf[:n])
		if err != nil {
			continue
		}
		for _, m := range msgs {
			if m.Address != "/xinfo" || len(m.Args) < 4 {
				continue
			}
			found = append(found, Console{
				IP:       src.IP.String(),
				Name:     m.Args[1].S,
				Model:    m.Args[2].S,
				Firmware: m.Args[3].S,
			})
		}
	}
	return found, nil
}
