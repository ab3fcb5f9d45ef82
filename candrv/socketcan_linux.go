//go:build linux

package candrv

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux struct can_frame flag bits (linux/can.h).
const (
	canEFFFlag uint32 = 0x80000000
	canRTRFlag uint32 = 0x40000000
	canERRFlag uint32 = 0x20000000
	canIDMask  uint32 = 0x1FFFFFFF
)

const canFrameSize = 16

// rawCanFrame mirrors struct can_frame on the wire: a 32-bit id/flags word,
// a length byte, three pad bytes and up to 8 data bytes.
type rawCanFrame struct {
	id   uint32
	len  uint8
	pad  uint8
	res0 uint8
	res1 uint8
	data [8]byte
}

// SocketCANBus is a Bus backed by a Linux AF_CAN raw socket bound to a
// named interface (e.g. "can0").
type SocketCANBus struct {
	fd int
}

// NewSocketCANBus opens and binds a raw CAN socket on the given interface.
// The interface must already be up (e.g. via `ip link set can0 up`).
func NewSocketCANBus(ifaceName string) (*SocketCANBus, error) {
	iface, err := unix.IfNameToIndex(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("candrv: lookup interface %q: %w", ifaceName, err)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("candrv: open CAN socket: %w", err)
	}

	addr := &unix.SockaddrCAN{Ifindex: int(iface)}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("candrv: bind %q: %w", ifaceName, err)
	}

	return &SocketCANBus{fd: fd}, nil
}

// Recv blocks for up to timeout waiting for one frame.
func (b *SocketCANBus) Recv(timeout time.Duration) (Frame, error) {
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(b.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return Frame{}, fmt.Errorf("candrv: set read timeout: %w", err)
	}

	var raw rawCanFrame
	buf := (*(*[canFrameSize]byte)(unsafe.Pointer(&raw)))[:]
	n, err := unix.Read(b.fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return Frame{}, ErrTimeout
		}
		return Frame{}, err
	}
	if n != canFrameSize {
		return Frame{}, fmt.Errorf("candrv: short read: %d bytes", n)
	}

	return Frame{
		ArbitrationID: raw.id & canIDMask,
		Data:          append([]byte(nil), raw.data[:raw.len]...),
		DLC:           raw.len,
		IsExtendedID:  raw.id&canEFFFlag != 0,
		IsRemoteFrame: raw.id&canRTRFlag != 0,
		IsErrorFrame:  raw.id&canERRFlag != 0,
	}, nil
}

// Send writes one frame to the bus.
func (b *SocketCANBus) Send(f Frame) error {
	var raw rawCanFrame
	raw.id = f.ArbitrationID & canIDMask
	if f.IsExtendedID {
		raw.id |= canEFFFlag
	}
	if f.IsRemoteFrame {
		raw.id |= canRTRFlag
	}
	if f.IsErrorFrame {
		raw.id |= canERRFlag
	}
	raw.len = f.DLC
	copy(raw.data[:], f.Data)

	buf := (*(*[canFrameSize]byte)(unsafe.Pointer(&raw)))[:]
	n, err := unix.Write(b.fd, buf)
	if err != nil {
		return err
	}
	if n != canFrameSize {
		return fmt.Errorf("candrv: short write: %d bytes", n)
	}
	return nil
}

// Close releases the underlying socket.
func (b *SocketCANBus) Close() error {
	return unix.Close(b.fd)
}
