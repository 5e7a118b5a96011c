package config

import "fmt"

func errBadCount(field string, got, min int) error {
	return fmt.Errorf("%s must be >= %d, got %d", field, min, got)
}

func errBadAlignment(got int) error {
	return fmt.Errorf("dma_alignment must be a power of two >= 16, got %d", got)
}

func errPoolTooSmall(got, min int) error {
	return fmt.Errorf("prealloc_count must be >= tx_desc_count + 2*rx_desc_count (%d), got %d", min, got)
}
