package fec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usbarmory/ethring/dma"
	"github.com/usbarmory/ethring/platform/platformtest"
)

func TestNewBundleWiresOnKickToEngineLogic(t *testing.T) {
	tx, rx, drv := NewBundle(Config{Base: 0x02188000}, platformtest.NewMapper(), platformtest.NewDMA(), nil)
	require.NotNil(t, tx)
	require.NotNil(t, rx)
	require.NotNil(t, drv)

	_, _, err := drv.LowLevelInit()
	require.NoError(t, err)

	require.True(t, tx.CreateDescs(4).IsValid())
	tx.ResetDescs()
	tx.SetTxDescBuf(0, dma.Addr{Phys: 0x1000, Virt: make([]byte, 1600)}, 16, true, true)
	tx.ReadyTxDesc(0, 1)
	assert.True(t, drv.r.bit(regTDAR, 24), "ReadyTxDesc on the bundled tx ring must kick TDAR via onKick")

	require.True(t, rx.CreateDescs(4).IsValid())
	rx.ResetDescs()
	rx.SetRxDescBuf(0, dma.Addr{Phys: 0x2000, Virt: make([]byte, 1600)}, 1600)
	rx.ReadyRxDesc(0, false)
	assert.True(t, drv.r.bit(regRDAR, 24), "ReadyRxDesc on the bundled rx ring must kick RDAR via onKick")
}

func TestLowLevelInitUnmasksRecognizedInterrupts(t *testing.T) {
	drv := New(Config{Base: 0x02188000}, platformtest.NewMapper(), nil)
	_, _, err := drv.LowLevelInit()
	require.NoError(t, err)

	for _, bit := range []int{irqRXF, irqTXF, irqBABR, irqBABT, irqEBERR} {
		assert.True(t, drv.r.bit(regEIMR, bit), "LowLevelInit must unmask EIMR bit %d", bit)
	}
}
