// Package iface defines the interface adapter contract (iface_funcs,
// spec.md §4.4): per-MAC bring-up, TX/RX engine kicks, the legacy
// single-fragment fast path, and interrupt demultiplexing.
package iface

import "net"

// TxOutcome is the result of the legacy RawTx fast path.
type TxOutcome int

const (
	// Enqueued means the frame was placed on the ring; completion will
	// be reported later through the normal TX-complete path.
	Enqueued TxOutcome = iota
	// CompletedInline means the MAC transmitted (or otherwise disposed
	// of) the frame synchronously within the call; the caller's
	// tx_complete callback must fire exactly once for this outcome and
	// must not fire again later for the same submission.
	CompletedInline
	// Failed means the frame was not accepted and no slot was consumed:
	// the ring was full, or the adapter has no RawTx path (mac/fec).
	Failed
)

// Event is a recognized bit out of the MAC's interrupt-cause register.
type Event int

const (
	EventRxFrame Event = iota
	EventTxFrame
	EventBusError
)

// Funcs is the narrow per-MAC vtable for bring-up, engine control and
// interrupt handling.
type Funcs interface {
	// LowLevelInit reads the MAC address from OTP/EEPROM/register bank
	// and returns it along with the negotiated MTU (at least 1500
	// unless the MAC supports more).
	LowLevelInit() (mac net.HardwareAddr, mtu int, err error)

	// StartTxLogic idempotently re-enables the MAC's TX engine if it
	// was stopped. Called after every TX ring update.
	StartTxLogic()

	// StartRxLogic idempotently re-enables the MAC's RX engine if it
	// was stopped. Called after every RX ring update.
	StartRxLogic()

	// RawTx is the legacy single-fragment fast path. It returns Failed
	// without consuming a slot if the ring is full.
	RawTx(phys []uintptr, length []int, cookie any) TxOutcome

	// HandleIRQ consumes the MAC's interrupt-cause register and returns
	// the set of recognized events it reported, acknowledging the
	// source before returning.
	HandleIRQ() []Event
}
