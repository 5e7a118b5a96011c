// Package netif implements the stack glue (spec.md §4.5, component C6):
// bridging the ring engine to a gVisor tcpip.Stack via a channel.Endpoint,
// the pattern the teacher's imx6/usb/ethernet package uses to bridge a USB
// CDC-ECM link to the same stack. RX delivery and the scatter/copy TX
// fallback follow original_source/src/lwip.c's ethif_input/ethif_link_output.
package netif

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/buffer"
	"gvisor.dev/gvisor/pkg/tcpip/link/channel"
	"gvisor.dev/gvisor/pkg/tcpip/stack"

	"github.com/usbarmory/ethring/dma"
	"github.com/usbarmory/ethring/errs"
	"github.com/usbarmory/ethring/iface"
	"github.com/usbarmory/ethring/logging"
	"github.com/usbarmory/ethring/ring"
)

const ethHeaderLen = 14

// txCompletion is the ExternalOwned cookie threaded through a zero-copy
// scatter TX submission, mirroring original_source's tx_cookie_t: it
// unpins every fragment once the MAC confirms transmission.
type txCompletion struct {
	unpin func()
}

// Bridge binds one ring.Ring/iface.Funcs pair to a gVisor channel.Endpoint,
// the role the teacher's ethernet.NIC plays for CDC-ECM.
type Bridge struct {
	mu sync.Mutex

	Link   *channel.Endpoint
	Host   HardwareAddr // destination MAC framed into outbound packets
	Device HardwareAddr // this interface's own MAC, set by New from LowLevelInit

	ring *ring.Ring
	mac  iface.Funcs
	log  *logging.Logger

	mtu         int
	blockRetry  time.Duration // zero disables blocking retry (escape hatch)
	busError    bool
	droppedFull uint64
}

// HardwareAddr is a local alias so callers don't need to import
// tcpip directly just to build a Bridge.
type HardwareAddr = tcpip.LinkAddress

// New binds r and mac to a freshly created channel.Endpoint sized for
// qlen queued outbound packets, performing low_level_init and recording the
// negotiated MAC/MTU on the returned Bridge (spec.md's ethif_init).
func New(r *ring.Ring, mac iface.Funcs, qlen int, log *logging.Logger) (*Bridge, error) {
	if log == nil {
		log = logging.Default()
	}

	addr, mtu, err := mac.LowLevelInit()
	if err != nil {
		return nil, errs.New("netif.New", "", errs.InitFailed, err)
	}

	b := &Bridge{
		ring:       r,
		mac:        mac,
		log:        log,
		mtu:        mtu,
		blockRetry: 10 * time.Millisecond,
		Device:     tcpip.LinkAddress(addr),
		Link:       channel.New(qlen, uint32(mtu), tcpip.LinkAddress(addr)),
	}
	return b, nil
}

// SetBlockingRetry configures how long link_output spins retrying
// txcomplete on QueueFull before giving up; zero makes it fail immediately,
// the "escape hatch" spec.md §4.5 calls for.
func (b *Bridge) SetBlockingRetry(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blockRetry = d
}

// MarkBusError records a fatal bus condition; subsequent WriteOutbound
// calls fail until the driver resets the ring and clears it.
func (b *Bridge) MarkBusError() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.busError = true
}

func (b *Bridge) ClearBusError() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.busError = false
}

// DeliverInbound is ethif_input: pulls one completed frame off the RX ring,
// copies it into a stack-owned view, returns the DMA buffer to the pool and
// injects the packet upward. Returns false when there was nothing to
// deliver, matching ethif_input's has_more convention inverted for a
// for-has-more loop at the call site (see PollRx).
func (b *Bridge) DeliverInbound() bool {
	buf, length, err := b.ring.RxGet()
	if !buf.IsValid() {
		return false
	}

	// RxGet armed a fresh slot in place of the one it drained; re-arm
	// the MAC's RX engine in case it had stopped for lack of empty
	// descriptors.
	b.mac.StartRxLogic()

	if err != nil {
		b.log.Warnf("netif: rx frame error, dropping")
		b.ring.RxFree(buf)
		return true
	}

	if length < ethHeaderLen {
		b.ring.RxFree(buf)
		return true
	}

	frame := make([]byte, length)
	copy(frame, buf.Virt[:length])
	b.ring.RxFree(buf)

	hdr := buffer.NewViewFromBytes(frame[0:ethHeaderLen])
	proto := tcpip.NetworkProtocolNumber(binary.BigEndian.Uint16(frame[12:14]))
	payload := buffer.NewViewFromBytes(frame[ethHeaderLen:])

	pkt := &stack.PacketBuffer{
		LinkHeader: hdr,
		Data:       payload.ToVectorisedView(),
	}
	b.Link.InjectInbound(proto, pkt)

	return true
}

// PollRx drains the RX ring, delivering every completed frame, for use from
// a poll-mode front end or as the tail of an IRQ handler.
func (b *Bridge) PollRx() {
	for b.DeliverInbound() {
	}
}

// WriteOutbound is link_output: pulls the next queued outbound packet from
// the gVisor endpoint and transmits it, preferring zero-copy scatter TX and
// falling back to a single pool-buffer copy when any fragment can't be
// pinned. Returns false if there was nothing queued.
func (b *Bridge) WriteOutbound() (bool, error) {
	b.mu.Lock()
	if b.busError {
		b.mu.Unlock()
		return false, errs.New("netif.WriteOutbound", "tx", errs.BusError, nil)
	}
	retry := b.blockRetry
	b.mu.Unlock()

	info, valid := b.Link.Read()
	if !valid {
		return false, nil
	}

	segments := frameSegments(b.Host, b.Device, info)

	deadline := time.Now().Add(retry)
	for {
		err := b.transmitScatter(segments)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, errs.ErrQueueFull) || retry <= 0 {
			return true, err
		}

		if time.Now().After(deadline) {
			b.mu.Lock()
			b.droppedFull++
			b.mu.Unlock()
			return true, errs.New("netif.WriteOutbound", "tx", errs.QueueFull, nil)
		}

		b.ring.TxComplete()
	}
}

// frameSegments builds the Ethernet-header-plus-payload segment list for an
// outbound packet, matching the teacher's ECMTx field order (dest MAC, src
// MAC, ethertype, then the stack's own header and payload views) without
// joining them into one buffer, so WriteOutbound can try pinning each
// segment directly before falling back to a copy.
func frameSegments(dest, src HardwareAddr, info channel.PacketInfo) [][]byte {
	ethHdr := make([]byte, ethHeaderLen)
	copy(ethHdr[0:6], dest)
	copy(ethHdr[6:12], src)
	binary.BigEndian.PutUint16(ethHdr[12:14], uint16(info.Proto))

	return [][]byte{ethHdr, info.Pkt.Header.View(), info.Pkt.Data.ToView()}
}

// transmitScatter attempts zero-copy TX by pinning every segment directly
// and submitting them as one multi-fragment packet; on any pin failure it
// unwinds what it pinned and falls back to a single-buffer copy, per
// spec.md §4.5's link_output description.
func (b *Bridge) transmitScatter(segments [][]byte) error {
	frags := make([]ring.Fragment, 0, len(segments))
	pinned := make([]dma.Addr, 0, len(segments))

	unwind := func() {
		for _, a := range pinned {
			b.ring.Pool.DMA().Unpin(a)
		}
	}

	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		phys := b.ring.Pool.DMA().Pin(seg)
		if phys == 0 {
			unwind()
			return b.transmitCopy(joinSegments(segments))
		}
		pinned = append(pinned, dma.Addr{Phys: phys, Virt: seg})
		frags = append(frags, ring.Fragment{Buf: dma.Addr{Phys: phys, Virt: seg}, Len: len(seg)})
	}

	cookie := &txCompletion{unpin: unwind}
	complete := func(c any) {
		c.(*txCompletion).unpin()
	}

	if err := b.ring.TxPutMany(frags, complete, cookie); err != nil {
		return err
	}

	b.mac.StartTxLogic()
	return nil
}

func joinSegments(segments [][]byte) []byte {
	var n int
	for _, s := range segments {
		n += len(s)
	}
	out := make([]byte, 0, n)
	for _, s := range segments {
		out = append(out, s...)
	}
	return out
}

// transmitCopy is the fallback path: copy the frame into one pool buffer
// and submit it through the legacy single-slot TxGet/TxPut pair.
func (b *Bridge) transmitCopy(frame []byte) error {
	buf, size, err := b.ring.TxGet()
	if err != nil {
		return err
	}
	if len(frame) > size {
		b.ring.Pool.Free(buf)
		return errs.New("netif.transmitCopy", "tx", errs.RxFrameError, nil)
	}

	copy(buf.Virt, frame)
	if err := b.ring.TxPut(buf, len(frame)); err != nil {
		return err
	}

	b.mac.StartTxLogic()
	return nil
}

// HandleIRQ drains the MAC's interrupt-cause register once and services
// whatever it reports: RX delivery, TX reap, or marking a fatal bus error.
// Returns true iff at least one recognized source was present, so a caller
// can loop (spec.md §4.6: "while any ... is set") until the cause register
// reads clean.
func (b *Bridge) HandleIRQ() bool {
	evs := b.mac.HandleIRQ()
	for _, ev := range evs {
		switch ev {
		case iface.EventRxFrame:
			b.PollRx()
		case iface.EventTxFrame:
			b.ring.TxComplete()
		case iface.EventBusError:
			b.MarkBusError()
		}
	}
	return len(evs) > 0
}

// DroppedFull returns the count of outbound packets dropped after the
// blocking-retry deadline elapsed with the TX ring still full.
func (b *Bridge) DroppedFull() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.droppedFull
}
