package fec

import (
	"crypto/rand"
	"encoding/binary"
	"net"
	"sync"

	"github.com/usbarmory/ethring/iface"
	"github.com/usbarmory/ethring/logging"
	"github.com/usbarmory/ethring/platform"
)

// MTU is the maximum legacy-descriptor frame size the FEC buffer-descriptor
// Length field can carry, matching the teacher's enet.MTU.
const MTU = 1518

// Config carries the board-specific wiring the teacher's ENET struct
// exposed as exported fields (Base, CCGR, CG, Clock, EnablePLL, EnablePHY):
// values that come from the SoC/board package, not from the driver core.
type Config struct {
	Base uint32
	Size int

	CCGR uint32
	CG   int

	// Clock returns the REF_CLK frequency in Hz, used to derive the MII
	// clock divider.
	Clock func() uint32
	// EnablePLL brings up the ENET PLL for this controller index.
	EnablePLL func(index int) error
	// EnablePHY performs board-specific PHY power-up/reset sequencing.
	EnablePHY func() error

	Index int
	RMII  bool

	MAC           net.HardwareAddr
	DiscardErrors bool
}

// Driver adapts one NXP FEC/ENET controller instance to iface.Funcs,
// generalizing the teacher's ENET.Init/setup/SetMAC/Start/EnableInterrupt.
type Driver struct {
	mu  sync.Mutex
	cfg Config
	r   regs
	log *logging.Logger
}

// New maps the controller's register window via mapper and returns a
// Driver; LowLevelInit performs the actual reset/bring-up sequence.
func New(cfg Config, mapper platform.Mapper, log *logging.Logger) *Driver {
	if log == nil {
		log = logging.Default()
	}
	mem := mapper.MapPhysical(uintptr(cfg.Base), 0x200, false)
	return &Driver{cfg: cfg, r: regs{mem: mem}, log: log}
}

func (d *Driver) LowLevelInit() (net.HardwareAddr, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	mac := d.cfg.MAC
	if mac == nil {
		mac = make(net.HardwareAddr, 6)
		rand.Read(mac)
		mac[0] &= 0xfe
		mac[0] |= 0x02
	}

	if d.cfg.EnablePLL != nil {
		if err := d.cfg.EnablePLL(d.cfg.Index); err != nil {
			return nil, 0, err
		}
	}

	r := d.r

	// soft reset
	r.set(regECR, ecrRESET)
	for r.bit(regECR, ecrRESET) {
	}
	r.set(regECR, ecrDBSWP)

	r.write(regEIR, 0xffffffff)
	r.write(regEIMR, 0)

	r.set(regTCR, tcrFDEN)
	r.set(regMIB, mibDIS)
	r.clear(regECR, ecrEN1588)

	size := MTU + (bufferAlign - (MTU % bufferAlign))
	r.write(regMRBR, uint32(size))
	r.write(regFTRL, MTU)
	r.setN(regRCR, rcrMAXFL, 0x3fff, MTU)

	if d.cfg.DiscardErrors {
		r.set(regRACC, raccLINEDIS)
	}

	d.setMACLocked(mac)

	r.set(regRCR, rcrMIIMODE)
	r.setTo(regRCR, rcrRMIIMODE, d.cfg.RMII)
	r.set(regRCR, rcrFCE)
	r.clear(regRCR, rcrLOOP)

	r.setN(regMSCR, mscrHOLDTIME, 0b111, 1)
	if d.cfg.Clock != nil {
		r.setN(regMSCR, mscrMIISPEED, 0x3f, d.cfg.Clock()/(2*2500000))
	}

	r.set(regECR, ecrETHEREN)

	if d.cfg.EnablePHY != nil {
		if err := d.cfg.EnablePHY(); err != nil {
			return nil, 0, err
		}
	}

	// Clear and unmask the interrupt sources HandleIRQ recognizes;
	// EIMR was zeroed above and stays that way until explicitly armed.
	d.enableInterruptLocked(irqRXF)
	d.enableInterruptLocked(irqTXF)
	d.enableInterruptLocked(irqBABR)
	d.enableInterruptLocked(irqBABT)
	d.enableInterruptLocked(irqEBERR)

	d.cfg.MAC = mac
	return mac, MTU, nil
}

func (d *Driver) setMACLocked(mac net.HardwareAddr) {
	lower := binary.BigEndian.Uint32(mac[0:4])
	upper := binary.BigEndian.Uint16(mac[4:6])
	d.r.write(regPALR, lower)
	d.r.write(regPAUR, uint32(upper)<<16)
}

// SetRingBase programs RDSR/TDSR once the ring engine has allocated
// descriptor memory through Descriptors.CreateDescs.
func (d *Driver) SetRingBase(rxPhys, txPhys uintptr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.r.write(regRDSR, uint32(rxPhys))
	d.r.write(regTDSR, uint32(txPhys))
}

// StartTxLogic kicks TDAR, re-activating a stalled TX engine. Idempotent:
// setting an already-set bit is a no-op on real hardware.
func (d *Driver) StartTxLogic() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.r.set(regTDAR, 24)
}

// StartRxLogic kicks RDAR, re-activating a stalled RX engine.
func (d *Driver) StartRxLogic() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.r.set(regRDAR, 24)
}

// RawTx is unsupported on the FEC adapter: the FEC legacy descriptor ring
// has no scatter-gather TX path independent of the ring engine's own
// TxPutMany, so every submission goes through the normal ring path and
// RawTx always reports Failed, telling callers to fall back.
func (d *Driver) RawTx(phys []uintptr, length []int, cookie any) iface.TxOutcome {
	return iface.Failed
}

// HandleIRQ drains EIR, acknowledges every bit it reads, and translates the
// recognized subset into iface.Event values.
func (d *Driver) HandleIRQ() []iface.Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	cause := d.r.read(regEIR)
	if cause == 0 {
		return nil
	}
	d.r.write(regEIR, cause)

	var evs []iface.Event
	if cause&(1<<irqRXF) != 0 {
		evs = append(evs, iface.EventRxFrame)
	}
	if cause&(1<<irqTXF) != 0 {
		evs = append(evs, iface.EventTxFrame)
	}
	if cause&(1<<irqEBERR) != 0 || cause&(1<<irqBABR) != 0 || cause&(1<<irqBABT) != 0 {
		evs = append(evs, iface.EventBusError)
	}
	return evs
}

// EnableInterrupt unmasks delivery of a specific EIR bit through EIMR.
func (d *Driver) EnableInterrupt(bit int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enableInterruptLocked(bit)
}

// enableInterruptLocked is EnableInterrupt's body, callable from within
// LowLevelInit, which already holds d.mu for its whole sequence.
func (d *Driver) enableInterruptLocked(bit int) {
	d.r.set(regEIMR, bit)
}

var _ iface.Funcs = (*Driver)(nil)

// NewBundle wires a Driver's descriptor rings so that ownership transfer on
// either ring kicks the matching engine, the arrangement the teacher's
// ENET.Start establishes implicitly by sharing one struct for both roles:
// here Descriptors and Driver are separate adapters (desc.Funcs vs
// iface.Funcs), so onKick is the explicit link between them. tx/rx are
// ready for desc.Funcs.CreateDescs; drv is ready for iface.Funcs.LowLevelInit.
func NewBundle(cfg Config, mapper platform.Mapper, d platform.DMA, log *logging.Logger) (tx, rx *Descriptors, drv *Driver) {
	drv = New(cfg, mapper, log)
	tx = NewDescriptors(d, false, drv.StartTxLogic)
	rx = NewDescriptors(d, true, drv.StartRxLogic)
	return tx, rx, drv
}
