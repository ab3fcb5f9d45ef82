package canid

import (
	"testing"

	"canbridge/candrv"
	"canbridge/identity"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		t        MessageType
		src, dst byte
	}{
		{ISOTP, 0x00, 0x2A},
		{AddressRequest, 0x00, 0xFF},
		{AddressResponse, 0x00, 0xFF},
	}
	for _, tt := range tests {
		id := Encode(tt.t, tt.src, tt.dst)
		gotT, gotSrc, gotDst := Decode(id)
		if gotT != tt.t || gotSrc != tt.src || gotDst != tt.dst {
			t.Errorf("Decode(Encode(%v,%d,%d)) = (%v,%d,%d)", tt.t, tt.src, tt.dst, gotT, gotSrc, gotDst)
		}
	}
}

func TestDecodeUnknownType(t *testing.T) {
	id := Encode(MessageType(3), 1, 2)
	got, _, _ := Decode(id)
	if got != Unknown {
		t.Errorf("Decode() type = %v, want Unknown", got)
	}
}

func TestMaskForTransportClearsSource(t *testing.T) {
	id := Encode(ISOTP, 0x7A, 0x00)
	masked := MaskForTransport(id)
	_, src, dst := Decode(masked)
	if src != 0 {
		t.Errorf("masked source = %d, want 0", src)
	}
	if dst != 0 {
		t.Errorf("masked destination changed: got %d", dst)
	}
}

func TestAccept(t *testing.T) {
	base := candrv.Frame{IsExtendedID: true}
	if !Accept(base) {
		t.Error("Accept() = false for a well-formed extended frame")
	}
	if Accept(candrv.Frame{IsExtendedID: false}) {
		t.Error("Accept() = true for a standard-id frame")
	}
	remote := base
	remote.IsRemoteFrame = true
	if Accept(remote) {
		t.Error("Accept() = true for a remote frame")
	}
	errFrame := base
	errFrame.IsErrorFrame = true
	if Accept(errFrame) {
		t.Error("Accept() = true for an error frame")
	}
}

func TestAddressResponseRoundTrip(t *testing.T) {
	id, _ := identity.FromBytes([]byte{1, 2, 3, 4, 5, 6})
	f := MakeAddressResponse(0, 42, id)

	gotType, src, dst := Decode(f.ArbitrationID)
	if gotType != AddressResponse || src != AddressMaster || dst != AddressBroadcast {
		t.Fatalf("unexpected response id fields: type=%v src=%d dst=%d", gotType, src, dst)
	}
	if f.DLC != 8 || len(f.Data) != 8 {
		t.Fatalf("unexpected response length: DLC=%d len=%d", f.DLC, len(f.Data))
	}
	if f.Data[6] != 0 || f.Data[7] != 42 {
		t.Errorf("status/address bytes = %d,%d, want 0,42", f.Data[6], f.Data[7])
	}
}

func TestParseAddressRequestRoundTrip(t *testing.T) {
	id, _ := identity.FromBytes([]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF})
	f := candrv.Frame{
		ArbitrationID: Encode(AddressRequest, 0, AddressBroadcast),
		Data:          id.Bytes(),
		DLC:           6,
		IsExtendedID:  true,
	}
	got, err := ParseAddressRequest(f)
	if err != nil {
		t.Fatalf("ParseAddressRequest() error = %v", err)
	}
	if got != id {
		t.Errorf("ParseAddressRequest() = %v, want %v", got, id)
	}
}

func TestParseAddressRequestRejectsWrongType(t *testing.T) {
	f := candrv.Frame{ArbitrationID: Encode(ISOTP, 0, 1), Data: make([]byte, 6), DLC: 6}
	if _, err := ParseAddressRequest(f); err == nil {
		t.Error("ParseAddressRequest() accepted a non-address-request frame")
	}
}

func TestParseAddressRequestRejectsWrongDLC(t *testing.T) {
	f := candrv.Frame{ArbitrationID: Encode(AddressRequest, 0, 1), Data: make([]byte, 5), DLC: 5}
	if _, err := ParseAddressRequest(f); err == nil {
		t.Error("ParseAddressRequest() accepted a short frame")
	}
}

func TestAddressRequestPromptHasNoPayload(t *testing.T) {
	f := MakeAddressRequestPrompt(17)
	if f.DLC != 0 || len(f.Data) != 0 {
		t.Errorf("reannounce prompt carries payload: DLC=%d len=%d", f.DLC, len(f.Data))
	}
	typ, _, dst := Decode(f.ArbitrationID)
	if typ != AddressRequest || dst != 17 {
		t.Errorf("unexpected prompt id fields: type=%v dst=%d", typ, dst)
	}
}
