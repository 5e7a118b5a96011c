// Package fec adapts the NXP i.MX6 FEC/ENET controller to the desc.Funcs
// and iface.Funcs contracts, generalizing the teacher's
// soc/nxp/enet.ENET/bufferDescriptorRing from direct MMIO pointer
// dereference to the platform.Mapper/platform.DMA indirection spec.md §6
// requires, and from a single fixed-size ring to the configurable
// descriptor counts config.Config carries.
package fec

import (
	"encoding/binary"

	"github.com/usbarmory/ethring/bits"
)

// ENET register offsets, ported from the teacher's soc/nxp/enet register
// block (IMX6ULLRM §22.5 Memory map/register definition).
const (
	regEIR  = 0x0004
	regEIMR = 0x0008

	regRDAR = 0x0010
	regTDAR = 0x0014

	regECR      = 0x0024
	ecrDBSWP    = 8
	ecrEN1588   = 5
	ecrETHEREN  = 1
	ecrRESET    = 0

	regMMFR = 0x0040

	regMSCR       = 0x0044
	mscrHOLDTIME  = 8
	mscrMIISPEED  = 1

	regMIB = 0x0064
	mibDIS = 31

	regRCR      = 0x0084
	rcrMAXFL    = 16
	rcrRMIIMODE = 8
	rcrFCE      = 5
	rcrMIIMODE  = 2
	rcrLOOP     = 0

	regTCR  = 0x00c4
	tcrFDEN = 2

	regPALR = 0x00e4
	regPAUR = 0x00e8
	regRDSR = 0x0180
	regTDSR = 0x0184
	regMRBR = 0x0188
	regFTRL = 0x01b0

	regRACC     = 0x01c4
	raccLINEDIS = 6
)

// ENET interrupt-cause bits (IMX6ULLRM §22.5.1/22.5.2).
const (
	irqBABR  = 30
	irqBABT  = 29
	irqTXF   = 27
	irqRXF   = 25
	irqEBERR = 22
)

const (
	bufferAlign       = 64
	minFrameSizeBytes = 42
)

// regs is a thin accessor over a platform.Mapper-provided MMIO window,
// replacing the teacher's internal/reg package (which dereferences raw
// uint32 pointers — not something this module can do against a []byte
// window without architecture-specific unsafe code). encoding/binary gives
// the same little-endian read/modify/write semantics portably.
type regs struct {
	mem []byte
}

func (r regs) read(off uint32) uint32 {
	return binary.LittleEndian.Uint32(r.mem[off : off+4])
}

func (r regs) write(off uint32, v uint32) {
	binary.LittleEndian.PutUint32(r.mem[off:off+4], v)
}

func (r regs) set(off uint32, bit int) {
	v := r.read(off)
	bits.Set(&v, bit)
	r.write(off, v)
}

func (r regs) clear(off uint32, bit int) {
	v := r.read(off)
	bits.Clear(&v, bit)
	r.write(off, v)
}

func (r regs) setTo(off uint32, bit int, v bool) {
	val := r.read(off)
	bits.SetTo(&val, bit, v)
	r.write(off, val)
}

func (r regs) setN(off uint32, pos int, mask, val uint32) {
	v := r.read(off)
	bits.SetN(&v, pos, int(mask), val)
	r.write(off, v)
}

func (r regs) bit(off uint32, bit int) bool {
	v := r.read(off)
	return bits.Get(&v, bit)
}
