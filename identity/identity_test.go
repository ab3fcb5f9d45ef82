package identity

import "testing"

func TestFromBytesRoundTrip(t *testing.T) {
	raw := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01}
	id, err := FromBytes(raw)
	if err != nil {
		t.Fatalf("FromBytes() error = %v", err)
	}
	if got := id.Bytes(); string(got) != string(raw) {
		t.Errorf("Bytes() = %v, want %v", got, raw)
	}
	if want := "DE:AD:BE:EF:00:01"; id.String() != want {
		t.Errorf("String() = %q, want %q", id.String(), want)
	}
}

func TestFromBytesWrongLength(t *testing.T) {
	for _, n := range []int{0, 5, 7, 12} {
		if _, err := FromBytes(make([]byte, n)); err == nil {
			t.Errorf("FromBytes(%d bytes) = nil error, want error", n)
		}
	}
}

func TestEquality(t *testing.T) {
	a, _ := FromBytes([]byte{1, 2, 3, 4, 5, 6})
	b, _ := FromBytes([]byte{1, 2, 3, 4, 5, 6})
	c, _ := FromBytes([]byte{1, 2, 3, 4, 5, 7})
	if a != b {
		t.Error("identical byte sequences compared unequal")
	}
	if a == c {
		t.Error("differing byte sequences compared equal")
	}
}
