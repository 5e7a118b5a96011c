package ring_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usbarmory/ethring/errs"
	"github.com/usbarmory/ethring/mac/sim"
	"github.com/usbarmory/ethring/platform/platformtest"
	"github.com/usbarmory/ethring/pool"
	"github.com/usbarmory/ethring/ring"
)

const (
	txCount = 4
	rxCount = 4
	bufSize = 256
)

func newTestRing(t *testing.T) (*ring.Ring, *sim.Descriptors, *sim.Descriptors) {
	t.Helper()

	tx := sim.NewDescriptors("tx")
	rx := sim.NewDescriptors("rx")

	require.True(t, tx.CreateDescs(txCount).IsValid())
	require.True(t, rx.CreateDescs(rxCount).IsValid())

	d := platformtest.NewDMA()
	p := pool.New(d, bufSize, 16, false, nil)
	require.NoError(t, p.Fill(txCount+2*rxCount))

	r := ring.New(tx, rx, p, txCount, rxCount, nil)
	r.Reset()

	return r, tx, rx
}

func TestResetInitialUnusedIsCountMinusTwo(t *testing.T) {
	r, _, _ := newTestRing(t)

	_, _, unusedTx, countTx := r.TxCounters()
	assert.Equal(t, countTx-2, unusedTx)

	_, _, unusedRx, countRx := r.RxCounters()
	assert.Equal(t, countRx-2, unusedRx)
}

func TestTxHasSpaceRespectsFullEmptyDisambiguation(t *testing.T) {
	r, _, _ := newTestRing(t)

	_, _, unused, _ := r.TxCounters()
	assert.True(t, r.TxHasSpace(unused-1))
	assert.False(t, r.TxHasSpace(unused+1))
}

func TestTxPutSingleDecrementsUnused(t *testing.T) {
	r, _, _ := newTestRing(t)

	buf, size, err := r.TxGet()
	require.NoError(t, err)
	require.True(t, buf.IsValid())
	require.Equal(t, bufSize, size)

	_, _, unusedBefore, _ := r.TxCounters()
	require.NoError(t, r.TxPut(buf, 64))
	_, _, unusedAfter, _ := r.TxCounters()

	assert.Equal(t, unusedBefore-1, unusedAfter)
}

func TestTxCompleteReturnsBufferToPool(t *testing.T) {
	r, tx, _ := newTestRing(t)

	buf, _, err := r.TxGet()
	require.NoError(t, err)
	require.NoError(t, r.TxPut(buf, 64))

	head, _, unusedBefore, _ := r.TxCounters()

	// Nothing has completed yet: TxComplete must not advance head.
	r.TxComplete()
	headAfterNoop, _, unusedAfterNoop, _ := r.TxCounters()
	assert.Equal(t, head, headAfterNoop)
	assert.Equal(t, unusedBefore, unusedAfterNoop)

	tx.CompleteTx(head)
	drained := r.TxComplete()

	_, _, unusedAfter, count := r.TxCounters()
	assert.Equal(t, count-2, unusedAfter)
	assert.True(t, drained)
}

func TestTxPutManyOwnershipTailToHead(t *testing.T) {
	// Two fragments need TxHasSpace(2), i.e. three unused slots; a
	// txCount-deep ring only ever has txCount-2, so build a deeper one.
	const deepTx = 8
	tx := sim.NewDescriptors("tx")
	rx := sim.NewDescriptors("rx")
	require.True(t, tx.CreateDescs(deepTx).IsValid())
	require.True(t, rx.CreateDescs(rxCount).IsValid())
	p := pool.New(platformtest.NewDMA(), bufSize, 16, false, nil)
	require.NoError(t, p.Fill(deepTx+2*rxCount))
	r := ring.New(tx, rx, p, deepTx, rxCount, nil)
	r.Reset()

	d := platformtest.NewDMA()
	frags := []ring.Fragment{
		{Buf: d.Alloc(64, 16, false), Len: 64},
		{Buf: d.Alloc(64, 16, false), Len: 64},
	}

	completed := false
	cookie := "frame-1"
	require.True(t, r.TxHasSpace(len(frags)))
	require.NoError(t, r.TxPutMany(frags, func(c any) {
		completed = true
		assert.Equal(t, cookie, c)
	}, cookie))

	head, tail, _, count := r.TxCounters()
	assert.NotEqual(t, head, tail)

	// Hardware retires slots of a multi-fragment submission in order;
	// the ring only advances head past a slot once that slot itself
	// reports done.
	for k := 0; k < len(frags); k++ {
		tx.CompleteTx((head + k) % count)
	}
	r.TxComplete()

	assert.True(t, completed)
}

func TestTxGetFailsWhenFull(t *testing.T) {
	r, _, _ := newTestRing(t)

	_, _, unused, _ := r.TxCounters()
	for i := 0; i < unused; i++ {
		buf, _, err := r.TxGet()
		require.NoError(t, err)
		require.NoError(t, r.TxPut(buf, 32))
	}

	_, _, err := r.TxGet()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrQueueFull))
}

func TestRxRefillArmsEmptySlots(t *testing.T) {
	r, _, rx := newTestRing(t)
	r.RxRefill()

	_, _, unused, count := r.RxCounters()
	assert.Equal(t, 0, unused)

	// Every armed slot must report hardware-owned ("empty") to the MAC;
	// refill arms count-2 slots starting at tail, leaving two slack slots.
	_, tail, _, _ := r.RxCounters()
	for i := 0; i < count-2; i++ {
		assert.True(t, rx.IsRxDescEmpty((tail+i)%count))
	}
}

func TestRxGetDeliversCompletedFrame(t *testing.T) {
	r, _, rx := newTestRing(t)
	r.RxRefill()

	_, tail, _, _ := r.RxCounters()
	rx.DeliverRx(tail, 128, 0)

	buf, length, err := r.RxGet()
	require.NoError(t, err)
	assert.True(t, buf.IsValid())
	assert.Equal(t, 128, length)
}

func TestRxGetReportsFrameError(t *testing.T) {
	r, _, rx := newTestRing(t)
	r.RxRefill()

	_, tail, _, _ := r.RxCounters()
	rx.DeliverRx(tail, 64, 1<<5)

	buf, _, err := r.RxGet()
	assert.True(t, buf.IsValid())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrRxFrameError))
}

func TestRxGetEmptyReturnsNothing(t *testing.T) {
	r, _, _ := newTestRing(t)

	buf, length, err := r.RxGet()
	assert.False(t, buf.IsValid())
	assert.Zero(t, length)
	assert.NoError(t, err)
}

func TestRxGetRefillsAfterConsumption(t *testing.T) {
	r, _, rx := newTestRing(t)
	r.RxRefill()

	_, tail, unusedBefore, _ := r.RxCounters()
	rx.DeliverRx(tail, 100, 0)

	_, _, err := r.RxGet()
	require.NoError(t, err)

	_, _, unusedAfter, _ := r.RxCounters()
	// RxGet's internal RxRefill immediately arms one slot in place of the
	// one consumed, so unused returns to what it was before delivery.
	assert.Equal(t, unusedBefore, unusedAfter)
}

func TestRxFreeRetriesRefillOnPoolExhaustion(t *testing.T) {
	tx := sim.NewDescriptors("tx")
	rx := sim.NewDescriptors("rx")
	require.True(t, tx.CreateDescs(txCount).IsValid())
	require.True(t, rx.CreateDescs(rxCount).IsValid())

	d := platformtest.NewDMA()
	p := pool.New(d, bufSize, 16, false, nil)
	// Undersized pool: exactly enough to arm the ring once.
	require.NoError(t, p.Fill(rxCount - 2))

	r := ring.New(tx, rx, p, txCount, rxCount, nil)
	r.Reset()
	r.RxRefill()

	_, _, unused, count := r.RxCounters()
	assert.Equal(t, 0, unused, "pool is exactly large enough to fully arm the ring")
	assert.Equal(t, count-2, p.Outstanding())

	// Consuming a frame leaves the pool empty; with the lazy-overflow
	// allocation failing too, the refill inside RxGet comes up one short.
	_, tail, _, _ := r.RxCounters()
	rx.DeliverRx(tail, 60, 0)
	d.FailNextAlloc = 1
	buf, _, err := r.RxGet()
	require.NoError(t, err)
	_, _, unused, _ = r.RxCounters()
	assert.Equal(t, 1, unused)

	// Freeing the buffer back retries the refill, which now succeeds.
	r.RxFree(buf)
	_, _, unused, _ = r.RxCounters()
	assert.Equal(t, 0, unused)
}

func TestPoolConservationAcrossTxRxCycle(t *testing.T) {
	r, tx, rx := newTestRing(t)
	r.RxRefill()

	outstanding := func() int { return r.Pool.Outstanding() }
	base := outstanding()

	buf, _, err := r.TxGet()
	require.NoError(t, err)
	require.NoError(t, r.TxPut(buf, 40))
	tx.CompleteTx(0)
	r.TxComplete()

	assert.Equal(t, base, outstanding(), "tx buffer must return to the pool on completion")

	_, tail, _, _ := r.RxCounters()
	rx.DeliverRx(tail, 60, 0)
	rxBuf, _, err := r.RxGet()
	require.NoError(t, err)
	r.RxFree(rxBuf)

	assert.Equal(t, base, outstanding(), "rx buffer must return to the pool after RxFree")
}
