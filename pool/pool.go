// Package pool implements the buffer-pool manager (spec.md §4.1, component
// C1): a bounded LIFO stack of pre-pinned DMA buffers backing RX refills and
// TX copies, with a lazy-overflow path for transient spikes.
//
// Grounded on original_source/src/dma_buffers.c (dma_alloc_pin,
// alloc_dma_buf, free_dma_buf, fill_dma_pool): queue_index is the stack
// pointer into a fixed-size array of pre-pinned buffers. queue_index ==
// size means the stack is empty (every buffer checked out); 0 means full.
// Alloc past empty lazily pins one fresh buffer without growing the array;
// Free while already full (index == 0) detects that the buffer being
// returned is one of those overflow allocations and unpins+frees it for
// real rather than pushing it back.
package pool

import (
	"github.com/usbarmory/ethring/dma"
	"github.com/usbarmory/ethring/errs"
	"github.com/usbarmory/ethring/logging"
	"github.com/usbarmory/ethring/platform"
)

// Pool is a bounded stack of same-sized, pre-pinned DMA buffers.
type Pool struct {
	dma     platform.DMA
	log     *logging.Logger
	bufSize int
	align   int
	cached  bool

	queue []dma.Addr // pool_queue, depth == size
	index int        // queue_index: number of buffers currently checked out
}

// New constructs an empty Pool. Fill must be called before use.
func New(d platform.DMA, bufSize, align int, cached bool, log *logging.Logger) *Pool {
	if log == nil {
		log = logging.Default()
	}
	return &Pool{dma: d, log: log, bufSize: bufSize, align: align, cached: cached}
}

// Fill pre-pins count buffers of the pool's configured size, the driver
// init-time step spec.md §4.7 step 5 calls "fill the buffer pool". Fill may
// only be called once, against a freshly constructed Pool.
func (p *Pool) Fill(count int) error {
	if p.queue != nil {
		return errs.New("pool.Fill", "", errs.InitFailed, nil)
	}

	queue := make([]dma.Addr, 0, count)
	for i := 0; i < count; i++ {
		addr := p.dma.Alloc(p.bufSize, p.align, p.cached)
		if !addr.IsValid() {
			for _, b := range queue {
				p.dma.Free(b)
			}
			return errs.New("pool.Fill", "", errs.InitFailed, nil)
		}
		queue = append(queue, addr)
	}

	p.queue = queue
	p.index = 0
	p.log.Debugf("pool: filled %d buffers of %d bytes", count, p.bufSize)
	return nil
}

// BufSize returns the uniform buffer size every pool buffer is allocated
// at.
func (p *Pool) BufSize() int { return p.bufSize }

// DMA returns the platform DMA services the pool was constructed with, for
// callers that need to drive cache maintenance on buffers it hands out.
func (p *Pool) DMA() platform.DMA { return p.dma }

// Size returns the pool's configured depth.
func (p *Pool) Size() int { return len(p.queue) }

// Alloc draws one buffer from the pool, lazily pinning a fresh one if the
// pool is exhausted. Returns the zero Addr on failure.
func (p *Pool) Alloc() dma.Addr {
	if p.index == len(p.queue) {
		addr := p.dma.Alloc(p.bufSize, p.align, p.cached)
		if !addr.IsValid() {
			p.log.Warnf("pool: exhausted and overflow alloc failed")
		}
		return addr
	}

	addr := p.queue[p.index]
	p.index++
	return addr
}

// Free returns buf to the pool, or unpins and frees it outright if the pool
// was already full (buf must then be one of Alloc's lazy overflow
// allocations).
func (p *Pool) Free(buf dma.Addr) {
	if !buf.IsValid() {
		return
	}

	if p.index == 0 {
		p.dma.Free(buf)
		return
	}

	p.index--
	p.queue[p.index] = buf
}

// Outstanding returns the number of buffers currently checked out of the
// pool, for tests asserting spec.md §8's pool-conservation invariant.
func (p *Pool) Outstanding() int { return p.index }
