// Package canserver is the CAN receive demultiplexer: it drains raw frames
// from the bus, runs the address-assignment protocol, and routes data
// frames into the matching node session.
package canserver

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"canbridge/candrv"
	"canbridge/canid"
	"canbridge/packet"
	"canbridge/registry"
)

const recvTimeout = time.Second

// ErrUnknownNode is returned by SendPacket when no session holds the
// destination address.
var ErrUnknownNode = fmt.Errorf("canserver: unknown node address")

// Server drains one CAN bus into the node registry and exposes a
// packet-oriented interface to the TCP fan-out bridge.
type Server struct {
	bus      candrv.Bus
	registry *registry.Registry
	outCh    chan packet.Inbound
	stopCh   chan struct{}
}

// New constructs a Server bound to bus. Call Run to start the receive loop.
func New(bus candrv.Bus) *Server {
	outCh := make(chan packet.Inbound, 64)
	s := &Server{
		bus:    bus,
		outCh:  outCh,
		stopCh: make(chan struct{}),
	}
	s.registry = registry.New(s.sendRawFrame, outCh)
	return s
}

// Run drives the receive loop until ctx-like stop is requested via Stop.
func (s *Server) Run() {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		f, err := s.bus.Recv(recvTimeout)
		if err != nil {
			if err != candrv.ErrTimeout {
				log.Warnf("canserver: error receiving CAN frame: %v", err)
			}
			continue
		}

		s.handleFrame(f)
	}
}

// Stop terminates the receive loop.
func (s *Server) Stop() {
	close(s.stopCh)
}

func (s *Server) handleFrame(f candrv.Frame) {
	if !canid.Accept(f) {
		switch {
		case f.IsRemoteFrame:
			// Remote frames carry no payload; nothing to demultiplex.
		case f.IsErrorFrame:
			log.Warn("canserver: error frame received")
		default:
			log.Warnf("canserver: unexpected standard-id frame 0x%X", f.ArbitrationID)
		}
		return
	}

	t, src, dst := canid.Decode(f.ArbitrationID)
	switch t {
	case canid.AddressRequest:
		s.handleAddressRequest(f)
	case canid.ISOTP:
		s.handleISOTP(f, src, dst)
	default:
		log.Warnf("canserver: unexpected message type %d on id 0x%X", t, f.ArbitrationID)
	}
}

func (s *Server) handleAddressRequest(f candrv.Frame) {
	id, err := canid.ParseAddressRequest(f)
	if err != nil {
		log.Warnf("canserver: malformed address request: %v", err)
		return
	}
	log.Infof("canserver: address request from %s", id)

	var status, addr byte
	if existing := s.registry.FindByIdentity(id); existing != nil {
		addr = existing.Addr()
		status = 0
		log.Infof("canserver: %s already registered at address %d", id, addr)
	} else if sess, err := s.registry.Add(id); err != nil {
		status = 1
		addr = 0
		log.Errorf("canserver: failed to register %s: %v", id, err)
	} else {
		addr = sess.Addr()
		status = 0
		log.Infof("canserver: registered %s at address %d", id, addr)
	}

	resp := canid.MakeAddressResponse(status, addr, id)
	if err := s.bus.Send(resp); err != nil {
		log.Warnf("canserver: failed to send address response: %v", err)
	}
}

func (s *Server) handleISOTP(f candrv.Frame, src, dst byte) {
	if dst != canid.AddressMaster {
		log.Warnf("canserver: ISOTP frame from %d addressed to %d, not master; dropping", src, dst)
		return
	}

	sess := s.registry.FindByAddress(src)
	if sess == nil {
		log.Warnf("canserver: data frame from unknown node %d, prompting reannounce", src)
		prompt := canid.MakeAddressRequestPrompt(src)
		if err := s.bus.Send(prompt); err != nil {
			log.Warnf("canserver: failed to send reannounce prompt to %d: %v", src, err)
		}
		return
	}

	f.ArbitrationID = canid.MaskForTransport(f.ArbitrationID)
	sess.Deliver(f)
}

func (s *Server) sendRawFrame(f candrv.Frame) {
	if err := s.bus.Send(f); err != nil {
		log.Warnf("canserver: failed to send CAN frame: %v", err)
	}
}

// Registry exposes the node registry for read-only reporting (status API,
// health-check loop).
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// RecvPacket blocks until a reassembled packet is available from any node.
func (s *Server) RecvPacket() packet.Inbound {
	return <-s.outCh
}

// SendPacket delivers p to the node at p.DstAddr. It fails with
// ErrUnknownNode if no session holds that address; the send itself may
// block until the ISO-TP engine completes flow-controlled segmentation.
func (s *Server) SendPacket(p packet.Outbound) error {
	sess := s.registry.FindByAddress(p.DstAddr)
	if sess == nil {
		return ErrUnknownNode
	}
	return sess.Send(p)
}
