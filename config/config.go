// Package config holds the core's configuration keys, enumerated in
// spec.md §6, and their cross-field validation.
package config

import "github.com/usbarmory/ethring/errs"

// Config is the set of knobs driver.Init (C8) needs before it can allocate
// rings and the buffer pool. There is no file, CLI or environment-variable
// loading at this layer, per spec.md §6; callers populate this struct
// however fits their deployment (board package, flags, a config file
// parsed one layer up).
type Config struct {
	// RxDescCount is the RX ring depth. Must be >= 3.
	RxDescCount int
	// TxDescCount is the TX ring depth. Must be >= 3.
	TxDescCount int
	// PreallocCount is the buffer pool depth. Must be >=
	// TxDescCount + 2*RxDescCount so RX refill can never starve TX.
	PreallocCount int
	// PreallocBufSize is the pool buffer size, in bytes. Must be large
	// enough for the MTU plus link-layer headers.
	PreallocBufSize int
	// DMAAlignment is the alignment floor, in bytes, for descriptor
	// rings and pool buffers. Must be a power of two >= 16.
	DMAAlignment int
}

// Validate checks the invariants spec.md §3 and §6 place on a Config.
func (c Config) Validate() error {
	switch {
	case c.RxDescCount < 3:
		return errs.New("config.Validate", "rx", errs.InitFailed, errBadCount("rx_desc_count", c.RxDescCount, 3))
	case c.TxDescCount < 3:
		return errs.New("config.Validate", "tx", errs.InitFailed, errBadCount("tx_desc_count", c.TxDescCount, 3))
	case c.PreallocBufSize <= 0:
		return errs.New("config.Validate", "", errs.InitFailed, errBadCount("prealloc_buf_size", c.PreallocBufSize, 1))
	case !isPowerOfTwo(c.DMAAlignment) || c.DMAAlignment < 16:
		return errs.New("config.Validate", "", errs.InitFailed, errBadAlignment(c.DMAAlignment))
	}

	min := c.TxDescCount + 2*c.RxDescCount
	if c.PreallocCount < min {
		return errs.New("config.Validate", "", errs.InitFailed, errPoolTooSmall(c.PreallocCount, min))
	}

	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
