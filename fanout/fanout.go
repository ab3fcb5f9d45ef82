// Package fanout is the TCP fan-out bridge: it binds every distinct
// logical node address to its own backend TCP connection and relays
// payloads between the CAN-side packet queue and the backend socket in
// both directions.
package fanout

import (
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"canbridge/packet"
)

// MaxSendSize bounds the size of a single outbound chunk split off a TCP
// read, below the ISO-TP 4095-byte ceiling to leave margin.
const MaxSendSize = 2048

const (
	initialDialBackoff = time.Second
	maxDialBackoff     = 60 * time.Second
)

// CanServer is the subset of the CAN server's interface the fan-out bridge
// depends on.
type CanServer interface {
	RecvPacket() packet.Inbound
	SendPacket(packet.Outbound) error
}

// DiagSink observes a payload flowing through the bridge for a given node
// address. It must never block or return an error that could affect
// delivery; mqttdbg.Log satisfies this signature.
type DiagSink func(addr byte, data []byte)

// Bridge maintains one backend TCP connection per logical node address.
type Bridge struct {
	can  CanServer
	host string
	port int
	diag DiagSink

	mu          sync.Mutex
	connections map[byte]net.Conn

	stopCh chan struct{}
}

// New constructs a Bridge that dials host:port for each new source
// address seen from can. diag may be nil to disable payload introspection.
func New(can CanServer, host string, port int, diag DiagSink) *Bridge {
	return &Bridge{
		can:         can,
		host:        host,
		port:        port,
		diag:        diag,
		connections: make(map[byte]net.Conn),
		stopCh:      make(chan struct{}),
	}
}

func (b *Bridge) observe(addr byte, data []byte) {
	if b.diag != nil {
		b.diag(addr, data)
	}
}

// Run drives the CAN-to-TCP receive loop until Stop is called.
func (b *Bridge) Run() {
	for {
		next := make(chan packet.Inbound, 1)
		go func() { next <- b.can.RecvPacket() }()

		select {
		case <-b.stopCh:
			return
		case p := <-next:
			b.forward(p)
		}
	}
}

// Stop terminates the receive loop. In-flight per-connection workers exit
// on their own once their socket errors or is closed.
func (b *Bridge) Stop() {
	close(b.stopCh)
}

// forward looks up (or opens) the backend connection for p's source
// address and writes its payload. Per §5's locking discipline, the mutex
// guards only the map read/insert/remove — dialing and writing the socket
// both happen outside it.
func (b *Bridge) forward(p packet.Inbound) {
	b.mu.Lock()
	conn, exists := b.connections[p.SrcAddr]
	b.mu.Unlock()

	if !exists {
		dialed, err := b.dial(p.SrcAddr)
		if err != nil {
			log.Errorf("fanout: giving up dialing backend for node %d: %v", p.SrcAddr, err)
			return
		}

		b.mu.Lock()
		if existing, ok := b.connections[p.SrcAddr]; ok {
			// Lost a race with another opener; keep the winner.
			b.mu.Unlock()
			dialed.Close()
			conn = existing
		} else {
			b.connections[p.SrcAddr] = dialed
			conn = dialed
			b.mu.Unlock()
			go b.reverseWorker(p.SrcAddr, dialed)
		}
	}

	b.observe(p.SrcAddr, p.Data)

	if _, err := conn.Write(p.Data); err != nil {
		log.Errorf("fanout: write to backend for node %d failed: %v. Closing connection.", p.SrcAddr, err)
		b.closeIfCurrent(p.SrcAddr, conn)
	}
}

// dial connects to the backend, retrying with exponential backoff capped
// at maxDialBackoff so a backend outage does not spin-dial.
func (b *Bridge) dial(addr byte) (net.Conn, error) {
	backoff := initialDialBackoff
	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", b.host, b.port), 5*time.Second)
		if err == nil {
			log.Infof("fanout: first CAN packet from node %d, opened new TCP connection", addr)
			return conn, nil
		}
		lastErr = err
		log.Warnf("fanout: dial attempt %d for node %d failed: %v", attempt, addr, err)

		select {
		case <-b.stopCh:
			return nil, err
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxDialBackoff {
			backoff = maxDialBackoff
		}
	}
	return nil, lastErr
}

// reverseWorker reads from conn and forwards chunks of at most
// MaxSendSize bytes back to the node at addr, preserving order.
func (b *Bridge) reverseWorker(addr byte, conn net.Conn) {
	buf := make([]byte, MaxSendSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			log.Errorf("fanout: read from backend for node %d failed: %v. Closing connection.", addr, err)
			b.closeIfCurrent(addr, conn)
			return
		}

		data := buf[:n]
		b.observe(addr, data)

		for i := 0; i < len(data); i += MaxSendSize {
			end := i + MaxSendSize
			if end > len(data) {
				end = len(data)
			}
			chunk := data[i:end]
			op, err := packet.NewOutbound(addr, chunk)
			if err != nil {
				log.Warnf("fanout: dropping oversized chunk for node %d: %v", addr, err)
				continue
			}
			if err := b.can.SendPacket(op); err != nil {
				log.Errorf("fanout: failed to send packet to node %d: %v", addr, err)
			}
		}
	}
}

// closeIfCurrent removes and closes the table entry for addr only if it
// still points at conn, avoiding a race with a freshly reopened connection.
func (b *Bridge) closeIfCurrent(addr byte, conn net.Conn) {
	b.mu.Lock()
	if cur, ok := b.connections[addr]; ok && cur == conn {
		delete(b.connections, addr)
	}
	b.mu.Unlock()
	conn.Close()
}

// Connections returns the set of node addresses currently holding an open
// backend connection, for status reporting.
func (b *Bridge) Connections() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, 0, len(b.connections))
	for addr := range b.connections {
		out = append(out, addr)
	}
	return out
}
