// Package session owns the per-node ISO-TP transport engine and the worker
// that drains its reassembled packets onto the bridge's shared output queue.
package session

import (
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"canbridge/candrv"
	"canbridge/canid"
	"canbridge/identity"
	"canbridge/isotp"
	"canbridge/packet"
)

// inboundQueueSize bounds the per-session raw-frame FIFO fed by the demux.
const inboundQueueSize = 64

// stmin and flow-control timeout match the engine parameters spec.md §6
// fixes for every session.
const (
	stmin                = 2 * time.Millisecond
	rxFlowControlTimeout = 2 * time.Second
	recvWorkerTimeout    = time.Second
)

// Session owns one node's logical address, its ISO-TP engine, and the
// worker that forwards reassembled packets to the server-wide output queue.
// It lives for the process lifetime once created.
type Session struct {
	identity identity.NodeIdentity
	addr     byte

	inbound   chan candrv.Frame
	transport *isotp.Transport

	outCh chan<- packet.Inbound

	createdAt time.Time
	// lastActivity is UnixNano, written by recvWorker and read by the
	// health-check loop and the status API without further locking.
	lastActivity atomic.Int64
}

// SendFrame hands a raw CAN frame to the bus; supplied by the CAN server.
type SendFrame func(candrv.Frame)

// New constructs a session for identity at the given logical address,
// wires its ISO-TP engine to sendFrame for transmission, and starts both
// the engine and the session's drain worker. Reassembled packets are
// pushed to out, tagged with addr.
func New(id identity.NodeIdentity, addr byte, sendFrame SendFrame, out chan<- packet.Inbound) *Session {
	s := &Session{
		identity:  id,
		addr:      addr,
		inbound:   make(chan candrv.Frame, inboundQueueSize),
		outCh:     out,
		createdAt: time.Now(),
	}
	s.lastActivity.Store(s.createdAt.UnixNano())

	s.transport = isotp.NewTransport(
		s.rxFunc,
		func(f candrv.Frame) { sendFrame(s.addressFrame(f)) },
		isotp.Address{Mode: isotp.Normal29Bit, RxID: uint32(canid.AddressMaster), TxID: uint32(addr)},
		isotp.Params{BlockingSend: true, STMin: stmin, RxFlowControlTimeout: rxFlowControlTimeout},
	)
	s.transport.Start()

	go s.recvWorker()

	return s
}

// addressFrame stamps the engine's own tx CAN id (type ISOTP, src master,
// dst node address) onto frames the transport layer produces; the engine
// itself only knows payload bytes and PCI framing.
func (s *Session) addressFrame(f candrv.Frame) candrv.Frame {
	f.ArbitrationID = canid.Encode(canid.ISOTP, canid.AddressMaster, s.addr)
	return f
}

// Identity returns the node's hardware identity.
func (s *Session) Identity() identity.NodeIdentity { return s.identity }

// Addr returns the node's assigned logical address.
func (s *Session) Addr() byte { return s.addr }

// CreatedAt returns when this session was first established.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastActivity returns the time of the most recently reassembled packet, or
// the session's creation time if none has been reassembled yet.
func (s *Session) LastActivity() time.Time { return time.Unix(0, s.lastActivity.Load()) }

// Deliver enqueues a classified, masked CAN frame addressed to this
// session. Frames are dropped with a warning if the inbound queue is full.
func (s *Session) Deliver(f candrv.Frame) {
	select {
	case s.inbound <- f:
	default:
		log.Warnf("session %d: inbound queue full, dropping frame", s.addr)
	}
}

// Send transmits a packet to this node. The caller must ensure
// packet.DstAddr matches this session's address.
func (s *Session) Send(p packet.Outbound) error {
	if p.DstAddr != s.addr {
		return fmt.Errorf("session: packet dst %d does not match session address %d", p.DstAddr, s.addr)
	}
	return s.transport.Send(p.Data)
}

// rxFunc is the ISO-TP engine's rx callback: it dequeues from the
// session's inbound frame queue with the engine-supplied timeout.
func (s *Session) rxFunc(timeout time.Duration) (candrv.Frame, bool) {
	select {
	case f := <-s.inbound:
		return f, true
	case <-time.After(timeout):
		return candrv.Frame{}, false
	}
}

// recvWorker continuously drains reassembled packets from the engine for
// the session's lifetime, tagging each with the session's address.
func (s *Session) recvWorker() {
	for {
		data, ok := s.transport.Recv(true, recvWorkerTimeout)
		if !ok {
			continue
		}
		s.lastActivity.Store(time.Now().UnixNano())

		p, err := packet.NewInbound(s.addr, data)
		if err != nil {
			log.Warnf("session %d: reassembled packet rejected: %v", s.addr, err)
			continue
		}
		s.outCh <- p
	}
}
