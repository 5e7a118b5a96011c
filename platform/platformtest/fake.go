// Package platformtest provides a plain-memory platform.DMA, Mapper and
// IRQRegistrar for use from package tests, standing in for the mmap/mlock
// backed platform.Host so the test suite does not depend on a privileged
// mlock(2) call succeeding in a sandboxed CI environment.
package platformtest

import (
	"sync"

	"github.com/usbarmory/ethring/dma"
	"github.com/usbarmory/ethring/platform"
)

// DMA is a platform.DMA backed by ordinary Go heap allocations, assigning
// each buffer a synthetic, monotonically increasing physical address so
// descriptor adapters have something non-zero to program.
type DMA struct {
	mu   sync.Mutex
	next uintptr
	live map[uintptr][]byte

	// FailNextAlloc, when > 0, makes the next N Alloc calls fail,
	// letting tests exercise pool/ring exhaustion paths.
	FailNextAlloc int
}

// NewDMA constructs an empty fake DMA allocator.
func NewDMA() *DMA {
	return &DMA{next: 0x1000, live: make(map[uintptr][]byte)}
}

func (d *DMA) Alloc(size, align int, cached bool) dma.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailNextAlloc > 0 {
		d.FailNextAlloc--
		return dma.Addr{}
	}

	buf := make([]byte, size)
	phys := d.next
	d.next += uintptr(size) + uintptr(align) + 1
	d.live[phys] = buf
	return dma.Addr{Phys: phys, Virt: buf}
}

func (d *DMA) Pin(virt []byte) uintptr {
	d.mu.Lock()
	defer d.mu.Unlock()

	phys := d.next
	d.next += uintptr(len(virt)) + 1
	d.live[phys] = virt
	return phys
}

func (d *DMA) Unpin(addr dma.Addr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.live, addr.Phys)
}

func (d *DMA) Free(addr dma.Addr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.live, addr.Phys)
}

func (d *DMA) CacheClean(buf []byte, n int)      {}
func (d *DMA) CacheInvalidate(buf []byte, n int) {}

// Live reports how many outstanding Alloc/Pin allocations have not been
// Free'd/Unpinned, for tests asserting no DMA memory leaked.
func (d *DMA) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

// Mapper is a platform.Mapper returning a fixed in-memory register window
// per physical base address, for mac/fec tests that don't touch real MMIO.
type Mapper struct {
	mu      sync.Mutex
	windows map[uintptr][]byte
}

// NewMapper constructs an empty fake Mapper.
func NewMapper() *Mapper {
	return &Mapper{windows: make(map[uintptr][]byte)}
}

func (m *Mapper) MapPhysical(pa uintptr, size int, cached bool) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.windows[pa]; ok {
		return w
	}
	w := make([]byte, size)
	m.windows[pa] = w
	return w
}

// IRQRegistrar is a platform.IRQRegistrar recording the handlers registered
// against it, letting a test fire one synchronously.
type IRQRegistrar struct {
	mu       sync.Mutex
	handlers map[int]platform.IRQHandler
	nextID   int
}

// NewIRQRegistrar constructs an empty fake IRQRegistrar.
func NewIRQRegistrar() *IRQRegistrar {
	return &IRQRegistrar{handlers: make(map[int]platform.IRQHandler)}
}

func (r *IRQRegistrar) Register(irq int, handler platform.IRQHandler) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.handlers[r.nextID] = handler
	return r.nextID, nil
}

func (r *IRQRegistrar) Unregister(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, id)
	return nil
}

// Fire invokes the handler registered as id synchronously, acking it with a
// no-op, for tests driving irq.Front.EnableIRQ end to end.
func (r *IRQRegistrar) Fire(id int) {
	r.mu.Lock()
	h := r.handlers[id]
	r.mu.Unlock()
	if h != nil {
		h(func() {})
	}
}

var (
	_ platform.DMA          = (*DMA)(nil)
	_ platform.Mapper       = (*Mapper)(nil)
	_ platform.IRQRegistrar = (*IRQRegistrar)(nil)
)
