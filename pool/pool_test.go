package pool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usbarmory/ethring/dma"
	"github.com/usbarmory/ethring/platform/platformtest"
	"github.com/usbarmory/ethring/pool"
)

func TestFillTwiceFails(t *testing.T) {
	d := platformtest.NewDMA()
	p := pool.New(d, 256, 16, false, nil)

	require.NoError(t, p.Fill(4))
	assert.Error(t, p.Fill(4))
}

func TestFillUnwindsOnPartialFailure(t *testing.T) {
	d := platformtest.NewDMA()
	d.FailNextAlloc = 2
	p := pool.New(d, 256, 16, false, nil)

	err := p.Fill(4)
	require.Error(t, err)
	assert.Equal(t, 0, d.Live(), "partial allocations must be freed on Fill failure")
}

func TestAllocFreeLIFO(t *testing.T) {
	d := platformtest.NewDMA()
	p := pool.New(d, 256, 16, false, nil)
	require.NoError(t, p.Fill(3))

	a := p.Alloc()
	b := p.Alloc()
	require.True(t, a.IsValid())
	require.True(t, b.IsValid())
	assert.Equal(t, 2, p.Outstanding())

	p.Free(b)
	assert.Equal(t, 1, p.Outstanding())

	// LIFO: freeing b then allocating again returns the same buffer.
	c := p.Alloc()
	assert.Equal(t, b.Phys, c.Phys)
}

func TestAllocOverflowWhenExhausted(t *testing.T) {
	d := platformtest.NewDMA()
	p := pool.New(d, 256, 16, false, nil)
	require.NoError(t, p.Fill(2))

	a := p.Alloc()
	b := p.Alloc()
	require.True(t, a.IsValid())
	require.True(t, b.IsValid())

	// Pool is exhausted; Alloc falls through to a lazy overflow pin.
	c := p.Alloc()
	require.True(t, c.IsValid())
	assert.NotEqual(t, a.Phys, c.Phys)
	assert.NotEqual(t, b.Phys, c.Phys)
}

func TestFreeOverflowBufferDoesNotGrowQueue(t *testing.T) {
	d := platformtest.NewDMA()
	p := pool.New(d, 256, 16, false, nil)
	require.NoError(t, p.Fill(1))

	a := p.Alloc()
	require.True(t, a.IsValid())
	assert.Equal(t, 1, p.Size())

	// Pool is now fully checked out (index == size); Alloc overflows.
	overflow := p.Alloc()
	require.True(t, overflow.IsValid())

	// Freeing the checked-out, in-queue buffer first brings index back
	// to zero (pool full)...
	p.Free(a)
	assert.Equal(t, 0, p.Outstanding())

	// ...then freeing the overflow buffer while index==0 must really
	// free it rather than push it into the fixed-size queue.
	liveBefore := d.Live()
	p.Free(overflow)
	assert.Equal(t, 1, p.Size(), "queue depth must stay fixed")
	assert.Less(t, d.Live(), liveBefore, "overflow buffer must be really freed")
}

func TestAllocExhaustedOverflowFailureReturnsInvalid(t *testing.T) {
	d := platformtest.NewDMA()
	p := pool.New(d, 256, 16, false, nil)
	require.NoError(t, p.Fill(1))

	_ = p.Alloc() // drains the one real buffer

	d.FailNextAlloc = 1
	overflow := p.Alloc()
	assert.False(t, overflow.IsValid())
}

func TestFreeInvalidAddrIsNoop(t *testing.T) {
	d := platformtest.NewDMA()
	p := pool.New(d, 256, 16, false, nil)
	require.NoError(t, p.Fill(1))

	before := p.Outstanding()
	assert.NotPanics(t, func() {
		p.Free(dma.Addr{})
	})
	assert.Equal(t, before, p.Outstanding())
}
