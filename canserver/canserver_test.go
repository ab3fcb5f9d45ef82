package canserver

import (
	"testing"
	"time"

	"canbridge/candrv"
	"canbridge/canid"
	"canbridge/identity"
	"canbridge/registry"
)

func idFor(b byte) identity.NodeIdentity {
	raw := []byte{b, b, b, b, b, b}
	out, _ := identity.FromBytes(raw)
	return out
}

func addressRequestFrame(id identity.NodeIdentity) candrv.Frame {
	return candrv.Frame{
		ArbitrationID: canid.Encode(canid.AddressRequest, 0, canid.AddressBroadcast),
		Data:          id.Bytes(),
		DLC:           6,
		IsExtendedID:  true,
	}
}

func drainResponse(t *testing.T, bus *candrv.FakeBus) candrv.Frame {
	t.Helper()
	select {
	case f := <-bus.Sent:
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a response frame on the bus")
		return candrv.Frame{}
	}
}

func TestAddressRequestAssignsAddress(t *testing.T) {
	bus := candrv.NewFakeBus()
	s := New(bus)
	go s.Run()
	defer s.Stop()

	bus.Inject(addressRequestFrame(idFor(1)))

	resp := drainResponse(t, bus)
	typ, src, dst := canid.Decode(resp.ArbitrationID)
	if typ != canid.AddressResponse || src != canid.AddressMaster || dst != canid.AddressBroadcast {
		t.Fatalf("unexpected response addressing: type=%v src=%d dst=%d", typ, src, dst)
	}
	if resp.Data[6] != 0 {
		t.Errorf("response status = %d, want 0", resp.Data[6])
	}
	if resp.Data[7] != 1 {
		t.Errorf("assigned address = %d, want 1", resp.Data[7])
	}
}

func TestDuplicateAnnouncementReturnsSameAddress(t *testing.T) {
	bus := candrv.NewFakeBus()
	s := New(bus)
	go s.Run()
	defer s.Stop()

	id := idFor(2)
	bus.Inject(addressRequestFrame(id))
	first := drainResponse(t, bus)

	bus.Inject(addressRequestFrame(id))
	second := drainResponse(t, bus)

	if first.Data[7] != second.Data[7] {
		t.Errorf("address changed across re-announcement: %d then %d", first.Data[7], second.Data[7])
	}
	if second.Data[6] != 0 {
		t.Errorf("duplicate announcement status = %d, want 0", second.Data[6])
	}
}

func TestCapacityOverflowReportsFailureStatus(t *testing.T) {
	bus := candrv.NewFakeBus()
	s := New(bus)
	for i := 0; i < registry.MaxNodes; i++ {
		if _, err := s.registry.Add(idFor(byte(i))); err != nil {
			t.Fatalf("pre-filling registry: Add() #%d error = %v", i, err)
		}
	}
	go s.Run()
	defer s.Stop()

	bus.Inject(addressRequestFrame(idFor(255)))
	resp := drainResponse(t, bus)
	if resp.Data[6] == 0 {
		t.Error("response status = 0 for an address request past capacity, want non-zero")
	}
}

func TestUnknownSourceDataFramePromptsReannounce(t *testing.T) {
	bus := candrv.NewFakeBus()
	s := New(bus)
	go s.Run()
	defer s.Stop()

	frame := candrv.Frame{
		ArbitrationID: canid.Encode(canid.ISOTP, 50, canid.AddressMaster),
		Data:          []byte{0x02, 'h', 'i'},
		DLC:           3,
		IsExtendedID:  true,
	}
	bus.Inject(frame)

	resp := drainResponse(t, bus)
	typ, _, dst := canid.Decode(resp.ArbitrationID)
	if typ != canid.AddressRequest || dst != 50 {
		t.Errorf("unexpected prompt: type=%v dst=%d", typ, dst)
	}
}

func TestDataFrameToWrongDestinationIsDropped(t *testing.T) {
	bus := candrv.NewFakeBus()
	s := New(bus)
	go s.Run()
	defer s.Stop()

	s.registry.Add(idFor(5))

	frame := candrv.Frame{
		ArbitrationID: canid.Encode(canid.ISOTP, 5, 77), // not master
		Data:          []byte{0x02, 'h', 'i'},
		DLC:           3,
		IsExtendedID:  true,
	}
	bus.Inject(frame)

	select {
	case f := <-bus.Sent:
		t.Fatalf("server sent a frame in response to a misdirected data frame: %+v", f)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDataFrameFromRegisteredNodeIsDelivered(t *testing.T) {
	bus := candrv.NewFakeBus()
	s := New(bus)
	go s.Run()
	defer s.Stop()

	sess, err := s.registry.Add(idFor(6))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	frame := candrv.Frame{
		ArbitrationID: canid.Encode(canid.ISOTP, sess.Addr(), canid.AddressMaster),
		Data:          []byte{0x02, 'o', 'k'},
		DLC:           3,
		IsExtendedID:  true,
	}
	bus.Inject(frame)

	select {
	case p := <-s.outCh:
		if p.SrcAddr != sess.Addr() || string(p.Data) != "ok" {
			t.Errorf("delivered packet = %+v, want src=%d data=ok", p, sess.Addr())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivered packet")
	}
}
