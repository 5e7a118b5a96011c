// Package desc defines the descriptor adapter contract (desc_funcs,
// spec.md §4.3): the ten operations every per-MAC driver implements
// so the ring engine in package ring can drive RX/TX rings without knowing
// a single MAC's descriptor layout.
package desc

import "github.com/usbarmory/ethring/dma"

// Funcs is the narrow, per-MAC vtable the ring engine calls through. All
// per-slot operations take a zero-based slot index into the ring the
// method was obtained for (Funcs implementations are constructed once per
// ring, not shared between RX and TX).
//
// Implementations must treat MMIO as infallible from the ring engine's
// point of view (spec.md §4.3, "Failure semantics"): bus errors surface
// only via the IRQ status the iface.Funcs adapter reports, never as a
// return value here.
type Funcs interface {
	// CreateDescs allocates an uncached, cache-clean, zero-initialized
	// DMA region sized for n descriptors and returns it. n is always
	// >= 3.
	CreateDescs(n int) dma.Addr

	// ResetDescs marks every slot CPU-owned, clearing its fields and
	// flags. For a TX ring this leaves it empty; for an RX ring this
	// leaves it empty too (the ring engine's rxrefill is responsible for
	// arming slots). The adapters in this module do not touch MMIO
	// registers here; mac/fec's ring base is programmed through
	// driver.RingBaseSetter.
	ResetDescs()

	// IsTxDescReady reports whether hardware has not yet finished slot
	// i (the slot is still "ready for TX", i.e. hardware-owned).
	IsTxDescReady(i int) bool

	// IsRxDescEmpty reports whether slot i is still hardware-owned (no
	// frame delivered yet).
	IsRxDescEmpty(i int) bool

	// SetTxDescBuf writes buf's physical address and len into slot i,
	// and sets the wrap/last-of-packet flags. Ownership remains CPU
	// after this call; ReadyTxDesc performs the transfer.
	SetTxDescBuf(i int, buf dma.Addr, length int, wrap, last bool)

	// SetRxDescBuf writes buf's physical address and len into slot i.
	// Ownership remains CPU after this call; ReadyRxDesc performs the
	// transfer.
	SetRxDescBuf(i int, buf dma.Addr, length int)

	// ReadyTxDesc transfers ownership of the n slots starting at start
	// to hardware, in reverse order (tail-to-head), with a release
	// fence preceding each transfer, then kicks the MAC's TX engine.
	ReadyTxDesc(start, n int)

	// ReadyRxDesc transfers ownership of slot i to hardware, setting
	// the wrap flag iff wrap is true, then kicks the MAC's RX engine.
	ReadyRxDesc(i int, wrap bool)

	// GetRxBufLen returns the frame length hardware reported for a
	// completed slot i.
	GetRxBufLen(i int) int

	// GetRxDescError returns a MAC-neutral error bitmask for a
	// completed slot i, with reserved/spurious bits already masked by
	// the adapter.
	GetRxDescError(i int) uint32
}
