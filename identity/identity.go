// Package identity holds the 6-byte hardware identifier a node announces
// during address assignment.
package identity

import "fmt"

// Size is the fixed length of a NodeIdentity in bytes.
const Size = 6

// NodeIdentity is an opaque 6-byte hardware identifier, analogous to a MAC
// address. Equality is byte-wise.
type NodeIdentity [Size]byte

// FromBytes builds a NodeIdentity from a slice, which must be exactly Size
// bytes long.
func FromBytes(b []byte) (NodeIdentity, error) {
	var id NodeIdentity
	if len(b) != Size {
		return id, fmt.Errorf("identity: want %d bytes, got %d", Size, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Bytes returns the identity's raw 6 bytes.
func (id NodeIdentity) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, id[:])
	return out
}

// String renders the identity as colon-separated uppercase hex, e.g.
// "01:02:03:04:05:06".
func (id NodeIdentity) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", id[0], id[1], id[2], id[3], id[4], id[5])
}
