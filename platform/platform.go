// Package platform defines the downward contract spec.md §6 places on the
// host: DMA allocation/pinning, physical-to-virtual mapping, cache
// maintenance and interrupt registration. These are external collaborators
// per spec.md §1 ("Platform services... Treated as opaque"); this package
// only carries the interfaces the core depends on plus a host-testable
// reference implementation, it does not implement real hardware DMA.
package platform

import "github.com/usbarmory/ethring/dma"

// DMA provides buffer allocation, pinning and cache maintenance for DMA
// buffers and descriptor rings.
type DMA interface {
	// Alloc reserves size bytes aligned to align, optionally marking the
	// region uncached (device memory), and pins it for DMA, returning
	// the resulting address pair. Returns the zero Addr on failure.
	Alloc(size, align int, cached bool) dma.Addr
	// Pin registers an existing virtual buffer for DMA, returning its
	// physical address. Returns 0 on failure (e.g. non-contiguous
	// physical mapping), which callers must treat as non-fatal.
	Pin(virt []byte) (phys uintptr)
	// Unpin releases a mapping obtained from Pin.
	Unpin(addr dma.Addr)
	// Free releases memory obtained from Alloc.
	Free(addr dma.Addr)
	// CacheClean flushes CPU-dirty cache lines covering buf[:n] to
	// memory, making the data visible to a DMA-capable device.
	CacheClean(buf []byte, n int)
	// CacheInvalidate discards cache lines covering buf[:n] so a
	// subsequent read observes data a device wrote via DMA.
	CacheInvalidate(buf []byte, n int)
}

// Mapper maps a physical register window into the process's address space.
type Mapper interface {
	// MapPhysical maps size bytes at physical address pa. Caching
	// controls whether the CPU may cache the window (MMIO windows
	// never are).
	MapPhysical(pa uintptr, size int, cached bool) []byte
}

// IRQHandler is invoked by the platform when the registered interrupt
// fires. ack must be called exactly once, after the handler has finished
// touching the interrupt-cause register, to re-arm the source.
type IRQHandler func(ack func())

// IRQRegistrar registers and deregisters interrupt handlers.
type IRQRegistrar interface {
	// Register binds handler to irq, returning an opaque id.
	Register(irq int, handler IRQHandler) (id int, err error)
	// Unregister removes a handler previously returned by Register.
	Unregister(id int) error
}

// IO bundles the three downward services a driver instance needs, matching
// the "io_ops" field of the Driver aggregate in spec.md §3.
type IO struct {
	DMA    DMA
	Mapper Mapper
	IRQ    IRQRegistrar
}
