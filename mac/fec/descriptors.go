package fec

import (
	"github.com/usbarmory/ethring/desc"
	"github.com/usbarmory/ethring/dma"
	"github.com/usbarmory/ethring/platform"
)

// Legacy FEC buffer descriptor field offsets/bits (IMX6ULLRM §22.6.13), laid
// out exactly as the teacher's bufferDescriptor.Bytes(): Length (u16 LE),
// Status (u16 LE), Addr (u32 LE).
const (
	bdSize = 8

	offLength = 0
	offStatus = 2
	offAddr   = 4

	bdStW  = 13 // wrap
	bdStL  = 11 // last-in-frame (TX)
	bdStTC = 10 // transmit CRC (TX)

	bdRxStE  = 15 // empty (HW-owned)
	bdRxStLG = 5
	bdRxStNO = 4
	bdRxStCR = 2
	bdRxStOV = 1
	bdRxStTR = 0

	bdTxStR = 15 // ready (HW-owned)

	frameErrorMask = 1<<bdRxStCR | 1<<bdRxStLG | 1<<bdRxStNO | 1<<bdRxStOV | 1<<bdRxStTR
)

// Descriptors is a desc.Funcs implementation over one legacy FEC buffer
// descriptor ring (one instance per direction), ported from the teacher's
// bufferDescriptorRing and generalized to talk to platform.DMA instead of
// the bare-metal tamago/dma allocator.
type Descriptors struct {
	dma    platform.DMA
	rx     bool
	mem    []byte // n * bdSize, the descriptor table itself
	count  int
	onKick func() // e.g. set TDAR/RDAR active; nil is valid (no-op)
}

// NewDescriptors constructs a ring-direction adapter. rx selects RX vs TX
// field semantics; onKick, if non-nil, is invoked after ownership transfer
// to tell the MAC new work is available.
func NewDescriptors(d platform.DMA, rx bool, onKick func()) *Descriptors {
	return &Descriptors{dma: d, rx: rx, onKick: onKick}
}

func (d *Descriptors) slot(i int) []byte {
	return d.mem[i*bdSize : i*bdSize+bdSize]
}

func (d *Descriptors) CreateDescs(n int) dma.Addr {
	addr := d.dma.Alloc(n*bdSize, bufferAlign, false)
	if addr.IsValid() {
		d.mem = addr.Virt
		d.count = n
	}
	return addr
}

func (d *Descriptors) ResetDescs() {
	for i := 0; i < d.count; i++ {
		s := d.slot(i)
		for j := range s {
			s[j] = 0
		}
	}
}

func (d *Descriptors) IsTxDescReady(i int) bool {
	return statusBit(d.slot(i), bdTxStR)
}

func (d *Descriptors) IsRxDescEmpty(i int) bool {
	return statusBit(d.slot(i), bdRxStE)
}

func (d *Descriptors) SetTxDescBuf(i int, buf dma.Addr, length int, wrap, last bool) {
	s := d.slot(i)
	putU32(s[offAddr:], uint32(buf.Phys))
	putU16(s[offLength:], uint16(length))

	var status uint16
	status |= 1 << bdStTC
	if last {
		status |= 1 << bdStL
	}
	if wrap {
		status |= 1 << bdStW
	}
	putU16(s[offStatus:], status)
}

func (d *Descriptors) SetRxDescBuf(i int, buf dma.Addr, length int) {
	s := d.slot(i)
	putU32(s[offAddr:], uint32(buf.Phys))
	putU16(s[offLength:], uint16(length))
	clearBit(s, offStatus, bdRxStE)
}

// ReadyTxDesc transfers ownership tail-to-head (reverse iteration order),
// matching desc.Funcs' documented transfer order, then kicks TDAR once. It
// issues no explicit memory barrier between the ownership-bit stores.
func (d *Descriptors) ReadyTxDesc(start, n int) {
	for k := n - 1; k >= 0; k-- {
		i := (start + k) % d.count
		setBit(d.slot(i), offStatus, bdTxStR)
	}
	if d.onKick != nil {
		d.onKick()
	}
}

func (d *Descriptors) ReadyRxDesc(i int, wrap bool) {
	s := d.slot(i)
	setToBit(s, offStatus, bdStW, wrap)
	setBit(s, offStatus, bdRxStE)
	if d.onKick != nil {
		d.onKick()
	}
}

func (d *Descriptors) GetRxBufLen(i int) int {
	n := int(getU16(d.slot(i)[offLength:]))
	if n < 4 {
		return 0
	}
	// Hardware includes the trailing 4-byte CRC in the reported length;
	// the ring engine only wants the frame payload.
	return n - 4
}

func (d *Descriptors) GetRxDescError(i int) uint32 {
	status := getU16(d.slot(i)[offStatus:])
	return uint32(status) & frameErrorMask
}

var _ desc.Funcs = (*Descriptors)(nil)

func statusBit(s []byte, bit int) bool {
	return getU16(s[offStatus:])&(1<<uint(bit)) != 0
}

func setBit(s []byte, off, bit int) {
	v := getU16(s[off:])
	v |= 1 << uint(bit)
	putU16(s[off:], v)
}

func clearBit(s []byte, off, bit int) {
	v := getU16(s[off:])
	v &^= 1 << uint(bit)
	putU16(s[off:], v)
}

func setToBit(s []byte, off, bit int, on bool) {
	if on {
		setBit(s, off, bit)
	} else {
		clearBit(s, off, bit)
	}
}

func getU16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func putU16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}
func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
