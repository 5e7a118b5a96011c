// Package ring implements the DMA descriptor-ring engine (spec.md §4.2):
// the head/tail/unused bookkeeping for one RX ring and one TX ring,
// layered over a desc.Funcs adapter and a pool.Pool buffer cache.
//
// Grounded on bufferDescriptorRing.push/pop/next from the teacher's
// soc/nxp/enet/dma.go, generalized from a single hardware-format byte
// buffer to the desc.Funcs vtable, from single-buffer TX to scatter TX,
// and from byte-twiddled ownership bits to the TxOwner sum type spec.md §9
// calls for.
package ring

import (
	"github.com/usbarmory/ethring/desc"
	"github.com/usbarmory/ethring/dma"
	"github.com/usbarmory/ethring/errs"
	"github.com/usbarmory/ethring/logging"
	"github.com/usbarmory/ethring/pool"
)

// bufAlign is the cache-maintenance granularity cache-clean/invalidate
// extents are rounded up to, matching the teacher's ROUND_UP(len, 32)
// convention inherited from the original_source C implementation.
const bufAlign = 32

// TxOwner records who owns the buffer backing a TX slot once it has been
// committed, replacing the `cookie == nil` naming convention spec.md §9
// flags for redesign.
type TxOwner interface {
	isTxOwner()
}

// PoolOwned marks a TX slot whose buffer came from the pool and must be
// freed back to it on completion.
type PoolOwned struct{}

func (PoolOwned) isTxOwner() {}

// ExternalOwned marks a TX slot whose buffer belongs to the caller; on
// completion Complete(Cookie) is invoked instead of freeing to the pool.
type ExternalOwned struct {
	Cookie   any
	Complete func(cookie any)
}

func (ExternalOwned) isTxOwner() {}

type txSlot struct {
	buf    dma.Addr
	owner  TxOwner
	length int // set only on the head slot of a packet
}

type rxSlot struct {
	buf dma.Addr
}

type counters struct {
	head, tail, unused, count int
}

// Fragment is one scatter-gather piece of an outbound packet.
type Fragment struct {
	Buf dma.Addr
	Len int
}

// Ring is the driver-private ring engine for one MAC instance: one RX ring
// and one TX ring, the side-state arrays spec.md §3 describes, and the
// buffer pool backing both.
//
// TxDesc and RxDesc are separate desc.Funcs instances — one per physical
// descriptor table — per desc.Funcs' documented contract that an
// implementation is "constructed once per ring, not shared between RX and
// TX"; a single concrete adapter type (e.g. mac/fec.Descriptors) implements
// the whole interface but two instances of it back one Ring.
type Ring struct {
	TxDesc desc.Funcs
	RxDesc desc.Funcs
	Pool   *pool.Pool
	Log    *logging.Logger

	tx    []txSlot
	txCtr counters

	rx    []rxSlot
	rxCtr counters
}

// New constructs a Ring for the given descriptor counts. Reset must be
// called before use.
func New(txDesc, rxDesc desc.Funcs, p *pool.Pool, txCount, rxCount int, log *logging.Logger) *Ring {
	if log == nil {
		log = logging.Default()
	}
	return &Ring{
		TxDesc: txDesc,
		RxDesc: rxDesc,
		Pool:   p,
		Log:    log,
		tx:     make([]txSlot, txCount),
		txCtr:  counters{count: txCount},
		rx:     make([]rxSlot, rxCount),
		rxCtr:  counters{count: rxCount},
	}
}

// Reset puts the ring engine back to its post-init state without
// reallocating rings (spec.md §4.2 "reset"). The TX ring ends up empty; the
// RX ring is logically empty until RxRefill is called.
//
// Both counters start at count-2 rather than count (TX) or 0 (RX): spec.md
// §3 pins "unused ≤ count − 2 always" as a standing invariant, and §4.7
// step 4 gives the same count-2 formula for both rings at init time. The
// narrative description of reset() in §4.2 ("unused_tx = count_tx,
// unused_rx = 0") and the walked boundary examples in §8 do not agree with
// each other or with §3 on the exact initial value; this module follows
// the invariant-bearing section, see DESIGN.md.
func (r *Ring) Reset() {
	for i := range r.tx {
		r.tx[i] = txSlot{}
	}
	for i := range r.rx {
		r.rx[i] = rxSlot{}
	}

	r.txCtr = counters{count: len(r.tx), unused: len(r.tx) - 2}
	r.rxCtr = counters{count: len(r.rx), unused: len(r.rx) - 2}

	r.TxDesc.ResetDescs()
	r.RxDesc.ResetDescs()
}

// TxHasSpace reports whether n more packets (contiguous slots) can be
// enqueued without blocking, preserving the one-slot full/empty
// disambiguation.
func (r *Ring) TxHasSpace(n int) bool {
	return r.txCtr.unused >= n+1
}

// TxGet obtains the next empty TX slot and tentatively assigns it a pool
// buffer, for the legacy single-buffer path. Callers must pair every TxGet
// with a TxPut; a second TxGet without an intervening TxPut redraws a
// fresh pool buffer and leaks the first draw's pool accounting (spec.md §9,
// pinned as "always paired" — this is a documented caller contract, not a
// runtime-checked one).
func (r *Ring) TxGet() (buf dma.Addr, size int, err error) {
	r.TxComplete()

	if r.txCtr.unused == 0 {
		return dma.Addr{}, 0, errs.New("ring.TxGet", "tx", errs.QueueFull, nil)
	}

	i := r.txCtr.tail
	b := r.Pool.Alloc()
	if !b.IsValid() {
		return dma.Addr{}, 0, errs.New("ring.TxGet", "tx", errs.BufExhausted, nil)
	}

	r.tx[i].buf = b
	return b, r.Pool.BufSize(), nil
}

// TxPut commits the most recently obtained TX slot.
func (r *Ring) TxPut(buf dma.Addr, length int) error {
	if r.txCtr.unused == 0 {
		return errs.New("ring.TxPut", "tx", errs.QueueFull, nil)
	}

	i := r.txCtr.tail
	r.Pool.DMA().CacheClean(buf.Virt, dma.RoundUp(length, bufAlign))

	wrap := r.advanceTxTail()

	r.TxDesc.SetTxDescBuf(i, buf, length, wrap, true)
	r.tx[i].owner = PoolOwned{}
	r.tx[i].length = 1

	r.TxDesc.ReadyTxDesc(i, 1)
	r.Log.Debugf("ring: tx slot %d committed, len=%d", i, length)

	return nil
}

// TxPutMany enqueues a multi-slot packet. Callers must first confirm
// TxHasSpace(len(frags)).
func (r *Ring) TxPutMany(frags []Fragment, complete func(cookie any), cookie any) error {
	if !r.TxHasSpace(len(frags)) {
		return errs.New("ring.TxPutMany", "tx", errs.QueueFull, nil)
	}

	start := r.txCtr.tail

	for j, f := range frags {
		i := r.txCtr.tail
		r.Pool.DMA().CacheClean(f.Buf.Virt, dma.RoundUp(f.Len, bufAlign))

		wrap := r.advanceTxTail()
		last := j == len(frags)-1

		r.TxDesc.SetTxDescBuf(i, f.Buf, f.Len, wrap, last)
		r.tx[i].buf = f.Buf

		if last {
			r.tx[i].owner = ExternalOwned{Cookie: cookie, Complete: complete}
			r.tx[start].length = len(frags)
		} else {
			r.tx[i].owner = PoolOwned{}
		}
	}

	// Transfer ownership tail-to-head: hardware may start consuming as
	// soon as the head slot becomes hardware-owned, so every fragment
	// must already be visible when that happens.
	r.TxDesc.ReadyTxDesc(start, len(frags))

	return nil
}

func (r *Ring) advanceTxTail() (wrap bool) {
	wrap = r.txCtr.tail == r.txCtr.count-1
	if wrap {
		r.txCtr.tail = 0
	} else {
		r.txCtr.tail++
	}
	r.txCtr.unused--
	return
}

// TxComplete reaps completed head slots, invoking completion callbacks or
// returning pool buffers as appropriate, and reports whether the ring is
// now fully drained (unused back at its post-Reset value of count-2).
func (r *Ring) TxComplete() bool {
	idle := r.txCtr.count - 2
	for r.txCtr.unused < idle && !r.TxDesc.IsTxDescReady(r.txCtr.head) {
		i := r.txCtr.head

		n := r.tx[i].length
		if n < 1 {
			n = 1
		}
		// A packet's owner is recorded on its last slot; the packet is
		// reaped only once that slot, too, reports done.
		last := (i + n - 1) % r.txCtr.count
		if r.TxDesc.IsTxDescReady(last) {
			break
		}
		slot := r.tx[last]

		switch owner := slot.owner.(type) {
		case ExternalOwned:
			if owner.Complete != nil {
				owner.Complete(owner.Cookie)
			}
		default:
			r.Pool.Free(slot.buf)
		}

		for k := 0; k < n; k++ {
			r.tx[r.txCtr.head] = txSlot{}
			if r.txCtr.head == r.txCtr.count-1 {
				r.txCtr.head = 0
			} else {
				r.txCtr.head++
			}
			r.txCtr.unused++
		}
	}

	return r.txCtr.unused == idle
}

// RxGet obtains the next completed RX slot, if any.
func (r *Ring) RxGet() (buf dma.Addr, length int, rxErr error) {
	i := r.rxCtr.tail

	// unused == count-2 means no slot is armed (see Reset).
	if r.rxCtr.unused == r.rxCtr.count-2 || r.RxDesc.IsRxDescEmpty(i) {
		return dma.Addr{}, 0, nil
	}

	buf = r.rx[i].buf
	length = r.RxDesc.GetRxBufLen(i)

	r.Pool.DMA().CacheInvalidate(buf.Virt, dma.RoundUp(length, bufAlign))

	errFlags := r.RxDesc.GetRxDescError(i)

	r.rx[i] = rxSlot{}
	if r.rxCtr.tail == r.rxCtr.count-1 {
		r.rxCtr.tail = 0
	} else {
		r.rxCtr.tail++
	}
	r.rxCtr.unused++

	r.RxRefill()

	if errFlags != 0 {
		return buf, length, errs.New("ring.RxGet", "rx", errs.RxFrameError, nil)
	}

	return buf, length, nil
}

// RxFree returns an RX buffer to the pool once the caller is done with it,
// and retries any refill that earlier failed for lack of a pool buffer.
func (r *Ring) RxFree(buf dma.Addr) {
	r.Pool.Free(buf)
	r.RxRefill()
}

// RxRefill drains the pool into empty RX slots. It is idempotent: calling
// it twice in succession with no interleaving pool activity leaves the
// pool and ring unchanged the second time, since the loop condition
// (unused > 0) is false immediately after the first call drains it.
func (r *Ring) RxRefill() {
	for r.rxCtr.unused > 0 {
		b := r.Pool.Alloc()
		if !b.IsValid() {
			r.Log.Warnf("ring: rx refill deficit, pool exhausted")
			return
		}

		i := r.rxCtr.head
		r.rx[i].buf = b

		r.RxDesc.SetRxDescBuf(i, b, r.Pool.BufSize())
		r.Pool.DMA().CacheInvalidate(b.Virt, dma.RoundUp(r.Pool.BufSize(), bufAlign))

		wrap := r.rxCtr.head == r.rxCtr.count-1
		r.RxDesc.ReadyRxDesc(i, wrap)

		if wrap {
			r.rxCtr.head = 0
		} else {
			r.rxCtr.head++
		}
		r.rxCtr.unused--
	}
}

// TxCounters and RxCounters expose the head/tail/unused/count snapshot for
// tests asserting spec.md §8's ring-accounting invariant.
func (r *Ring) TxCounters() (head, tail, unused, count int) {
	return r.txCtr.head, r.txCtr.tail, r.txCtr.unused, r.txCtr.count
}

func (r *Ring) RxCounters() (head, tail, unused, count int) {
	return r.rxCtr.head, r.rxCtr.tail, r.rxCtr.unused, r.rxCtr.count
}
