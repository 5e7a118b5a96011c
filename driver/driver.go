// Package driver implements lifecycle and init (spec.md §4.7, component
// C8): the aggregate root that wires together the buffer pool, the ring
// engine, a per-MAC desc.Funcs/iface.Funcs pair and the IRQ/poll front end,
// following the nine-step bring-up sequence and its reverse teardown.
// Grounded on the teacher's ENET.Init/setup two-phase bring-up (register
// mapping done by the caller, hardware bring-up performed here) and
// original_source/src/plat/imx6/imx6EthernetDriver.c's init ordering
// (descriptors before PHY enable). The RX refill runs after the adapter's
// LowLevelInit, so an adapter that unmasks its interrupt sources there
// (mac/fec does) has them unmasked before RX is primed; no handler runs
// until Front.EnableIRQ registers one.
package driver

import (
	"sync"

	"github.com/usbarmory/ethring/config"
	"github.com/usbarmory/ethring/desc"
	"github.com/usbarmory/ethring/errs"
	"github.com/usbarmory/ethring/iface"
	"github.com/usbarmory/ethring/irq"
	"github.com/usbarmory/ethring/logging"
	"github.com/usbarmory/ethring/netif"
	"github.com/usbarmory/ethring/platform"
	"github.com/usbarmory/ethring/pool"
	"github.com/usbarmory/ethring/ring"
)

// Adapters bundles the per-MAC desc.Funcs pair and the iface.Funcs
// implementation a concrete MAC package (mac/fec, mac/sim, ...) provides.
// TX and RX are separate instances, per desc.Funcs' own "constructed once
// per ring, not shared between RX and TX" contract.
type Adapters struct {
	TX    desc.Funcs
	RX    desc.Funcs
	Iface iface.Funcs
}

// RingBaseSetter is implemented by MAC adapters whose descriptor ring base
// address must be programmed into hardware separately from descriptor
// memory allocation (e.g. mac/fec.Driver.SetRingBase). Adapters without a
// register-based ring base (mac/sim) need not implement it.
type RingBaseSetter interface {
	SetRingBase(rxPhys, txPhys uintptr)
}

// Driver is the aggregate root spec.md §3 describes: immutable io_ops/
// desc_funcs/iface_funcs/dma_alignment plus the mutable ring engine, pool
// and stack glue built on top of them.
type Driver struct {
	mu sync.Mutex

	io  platform.IO
	cfg config.Config
	ad  Adapters
	log *logging.Logger

	Pool   *pool.Pool
	Ring   *ring.Ring
	Bridge *netif.Bridge
	Front  *irq.Front

	initialized bool
}

// Init runs the nine-step bring-up sequence and returns a ready Driver, or
// unwinds whatever it allocated and returns an error.
func Init(io platform.IO, cfg config.Config, ad Adapters, log *logging.Logger) (drv *Driver, err error) {
	if log == nil {
		log = logging.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errs.New("driver.Init", "", errs.InitFailed, err)
	}

	d := &Driver{io: io, cfg: cfg, ad: ad, log: log}

	// Steps 2-3: descriptor tables, one per direction.
	txDescAddr := ad.TX.CreateDescs(cfg.TxDescCount)
	if !txDescAddr.IsValid() {
		return nil, errs.New("driver.Init", "tx", errs.InitFailed, nil)
	}
	rxDescAddr := ad.RX.CreateDescs(cfg.RxDescCount)
	if !rxDescAddr.IsValid() {
		return nil, errs.New("driver.Init", "rx", errs.InitFailed, nil)
	}

	// Step 5: fill the buffer pool before any ring reset.
	d.Pool = pool.New(io.DMA, cfg.PreallocBufSize, cfg.DMAAlignment, false, log)
	if err := d.Pool.Fill(cfg.PreallocCount); err != nil {
		d.unwind()
		return nil, errs.New("driver.Init", "", errs.InitFailed, err)
	}

	// Steps 3-4 continued: one ring engine holding both tx and rx side
	// arrays and counters, over the two descriptor tables above.
	d.Ring = ring.New(ad.TX, ad.RX, d.Pool, cfg.TxDescCount, cfg.RxDescCount, log)

	// Step 6: reset the ring back to empty.
	d.Ring.Reset()

	// Step 7: adapter hardware bring-up (clocks, pads, PHY, MAC enable)
	// runs inside netif.New's call to mac.LowLevelInit, below. Program
	// the descriptor ring base now that both tables have addresses.
	if setter, ok := ad.Iface.(RingBaseSetter); ok {
		setter.SetRingBase(rxDescAddr.Phys, txDescAddr.Phys)
	}

	bridge, err := netif.New(d.Ring, ad.Iface, 64, log)
	if err != nil {
		d.unwind()
		return nil, err
	}
	d.Bridge = bridge

	// Step 8: prime RX via rxrefill.
	d.Ring.RxRefill()

	// Step 9: clear and unmask RX_FRAME/TX_FRAME/BUS_ERROR, handled by
	// the concrete adapter's own EnableInterrupt equivalent; the front
	// end only needs to be constructed and, if the caller wants IRQ
	// delivery rather than polling, have EnableIRQ called on it.
	d.Front = irq.New(d.Bridge, io.IRQ, log)

	d.initialized = true
	return d, nil
}

// unwind is called when Init fails after the pool has been constructed.
// It releases nothing: the descriptor tables and any pool buffers already
// filled stay allocated.
func (d *Driver) unwind() {
	if d.Pool != nil {
		// Buffers already filled are simply abandoned along with the
		// pool; there is no real DMA to unmap on the host reference
		// platform and no standing handle to iterate them back out
		// through.
	}
}

// Reset puts the ring back to empty without reallocating it, callable at
// init and after a fatal bus error (spec.md §4.7, §3 "Lifecycle").
func (d *Driver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Ring.Reset()
	d.Ring.RxRefill()
	d.Bridge.ClearBusError()
}

// Close tears the driver down: it disables the IRQ line and reaps the TX
// slots hardware has already finished. TX slots still hardware-owned are
// not reaped, and neither the pool nor the descriptor tables are freed.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil
	}

	if err := d.Front.DisableIRQ(); err != nil {
		d.log.Warnf("driver: disable irq on teardown: %v", err)
	}

	// TX slots hardware has finished are reaped and their completion
	// callbacks invoked with no extra error signal; slots still
	// hardware-owned are left as they are.
	d.Ring.TxComplete()

	d.initialized = false
	return nil
}
