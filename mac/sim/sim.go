// Package sim is an in-memory desc.Funcs/iface.Funcs adapter pair used by
// the ring engine's test suite and by callers that want to exercise the
// driver without real hardware. It is not grounded on any single teacher
// file; it models the same ownership-bit/ready-queue semantics
// mac/fec.Descriptors implements against real registers, substituting a
// plain Go slice for the MMIO descriptor table.
package sim

import (
	"net"
	"sync"

	"github.com/usbarmory/ethring/desc"
	"github.com/usbarmory/ethring/dma"
	"github.com/usbarmory/ethring/iface"
)

type slot struct {
	buf    dma.Addr
	length int
	err    uint32
	ready  bool // true: hardware-owned (not yet processed by the opposite side)
	wrap   bool
}

// Descriptors is a desc.Funcs backed by a plain slice, standing in for a
// MAC's descriptor table in host-side tests.
type Descriptors struct {
	mu    sync.Mutex
	slots []slot
	kind  string // "tx" or "rx", only used for log/debug clarity

	// DeliverRx lets a test synthesize a hardware RX completion: set
	// slots[i].ready=false (CPU owns, frame delivered) with the given
	// length/err out of band, then have the test driver call this.
}

// NewDescriptors constructs a Descriptors ring adapter of kind "tx" or
// "rx". Real allocation happens in CreateDescs.
func NewDescriptors(kind string) *Descriptors {
	return &Descriptors{kind: kind}
}

func (d *Descriptors) CreateDescs(n int) dma.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slots = make([]slot, n)
	buf := make([]byte, n) // placeholder backing memory, not used as real descriptors
	return dma.Addr{Phys: 1, Virt: buf}
}

func (d *Descriptors) ResetDescs() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.slots {
		d.slots[i] = slot{}
	}
}

func (d *Descriptors) IsTxDescReady(i int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slots[i].ready
}

func (d *Descriptors) IsRxDescEmpty(i int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slots[i].ready
}

func (d *Descriptors) SetTxDescBuf(i int, buf dma.Addr, length int, wrap, last bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slots[i].buf = buf
	d.slots[i].length = length
	d.slots[i].wrap = wrap
}

func (d *Descriptors) SetRxDescBuf(i int, buf dma.Addr, length int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slots[i].buf = buf
	d.slots[i].length = length
}

// ReadyTxDesc marks slots [start, start+n) hardware-owned, tail-to-head,
// matching the real adapter's transfer order.
func (d *Descriptors) ReadyTxDesc(start, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k := n - 1; k >= 0; k-- {
		i := (start + k) % len(d.slots)
		d.slots[i].ready = true
	}
}

func (d *Descriptors) ReadyRxDesc(i int, wrap bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slots[i].ready = true
	d.slots[i].wrap = wrap
}

func (d *Descriptors) GetRxBufLen(i int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slots[i].length
}

func (d *Descriptors) GetRxDescError(i int) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slots[i].err
}

// CompleteTx marks TX slot i as hardware-finished (ready=false), as if the
// MAC had transmitted it, for tests driving txcomplete.
func (d *Descriptors) CompleteTx(i int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slots[i].ready = false
}

// DeliverRx marks RX slot i as a completed hardware delivery carrying
// length bytes and error flags errFlags.
func (d *Descriptors) DeliverRx(i, length int, errFlags uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slots[i].ready = false
	d.slots[i].length = length
	d.slots[i].err = errFlags
}

var _ desc.Funcs = (*Descriptors)(nil)

// MAC is an in-memory iface.Funcs standing in for a real MAC's bring-up and
// interrupt-cause register.
type MAC struct {
	mu          sync.Mutex
	mac         net.HardwareAddr
	mtu         int
	txStarted   bool
	rxStarted   bool
	pendingIRQs []iface.Event
	FullOnRawTx bool // when set, RawTx always reports Failed
}

// NewMAC constructs a simulated MAC reporting the given address/MTU from
// LowLevelInit.
func NewMAC(mac net.HardwareAddr, mtu int) *MAC {
	return &MAC{mac: mac, mtu: mtu}
}

func (m *MAC) LowLevelInit() (net.HardwareAddr, int, error) {
	return m.mac, m.mtu, nil
}

func (m *MAC) StartTxLogic() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txStarted = true
}

func (m *MAC) StartRxLogic() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rxStarted = true
}

func (m *MAC) RawTx(phys []uintptr, length []int, cookie any) iface.TxOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FullOnRawTx {
		return iface.Failed
	}
	return iface.Enqueued
}

// QueueIRQ lets a test enqueue a synthetic interrupt cause for the next
// HandleIRQ call.
func (m *MAC) QueueIRQ(ev iface.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingIRQs = append(m.pendingIRQs, ev)
}

func (m *MAC) HandleIRQ() []iface.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	evs := m.pendingIRQs
	m.pendingIRQs = nil
	return evs
}

var _ iface.Funcs = (*MAC)(nil)
