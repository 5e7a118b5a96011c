package fec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usbarmory/ethring/dma"
	"github.com/usbarmory/ethring/platform/platformtest"
)

func TestTxDescBufRoundTrip(t *testing.T) {
	d := NewDescriptors(platformtest.NewDMA(), false, nil)
	require.True(t, d.CreateDescs(4).IsValid())
	d.ResetDescs()

	buf := dma.Addr{Phys: 0xdeadbeef, Virt: make([]byte, 256)}
	d.SetTxDescBuf(1, buf, 64, true, true)

	assert.False(t, d.IsTxDescReady(1), "SetTxDescBuf must not itself transfer ownership")

	d.ReadyTxDesc(1, 1)
	assert.True(t, d.IsTxDescReady(1))
}

func TestReadyTxDescOrderTailToHead(t *testing.T) {
	var kicked int
	d := NewDescriptors(platformtest.NewDMA(), false, func() { kicked++ })
	require.True(t, d.CreateDescs(4).IsValid())
	d.ResetDescs()

	for i := 0; i < 3; i++ {
		d.SetTxDescBuf(i, dma.Addr{Phys: uintptr(i + 1), Virt: make([]byte, 16)}, 16, false, i == 2)
	}
	d.ReadyTxDesc(0, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, d.IsTxDescReady(i))
	}
	assert.Equal(t, 1, kicked, "ReadyTxDesc must kick exactly once per submission")
}

func TestRxDescEmptyAndErrorFlags(t *testing.T) {
	d := NewDescriptors(platformtest.NewDMA(), true, nil)
	require.True(t, d.CreateDescs(4).IsValid())
	d.ResetDescs()

	d.SetRxDescBuf(0, dma.Addr{Phys: 0x1000, Virt: make([]byte, 1600)}, 1600)
	d.ReadyRxDesc(0, false)
	assert.True(t, d.IsRxDescEmpty(0), "armed slot is hardware-owned (empty)")

	// Simulate hardware delivering a frame with a CRC error: clear the
	// ready/empty bit and set the CRC bit directly on the raw slot, the
	// way real MMIO would look after a completed receive.
	s := d.slot(0)
	clearBit(s, offStatus, bdRxStE)
	setBit(s, offStatus, bdRxStCR)
	putU16(s[offLength:], 68) // 64 bytes payload + 4-byte CRC

	assert.False(t, d.IsRxDescEmpty(0))
	assert.Equal(t, 64, d.GetRxBufLen(0))
	assert.NotZero(t, d.GetRxDescError(0))
}

func TestGetRxBufLenShortCircuitsOnSub4(t *testing.T) {
	d := NewDescriptors(platformtest.NewDMA(), true, nil)
	require.True(t, d.CreateDescs(1).IsValid())
	d.ResetDescs()

	putU16(d.slot(0)[offLength:], 2)
	assert.Equal(t, 0, d.GetRxBufLen(0))
}

func TestRegsSetClearBit(t *testing.T) {
	mem := make([]byte, 0x200)
	r := regs{mem: mem}

	r.set(regEIMR, 3)
	assert.True(t, r.bit(regEIMR, 3))

	r.clear(regEIMR, 3)
	assert.False(t, r.bit(regEIMR, 3))

	r.setN(regRCR, rcrMAXFL, 0x3fff, 1518)
	assert.Equal(t, uint32(1518), (r.read(regRCR)>>rcrMAXFL)&0x3fff)
}
