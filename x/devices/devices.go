// Package devices provides platform-agnostic interfaces for the buses and
// converters this robot uses: SPI, free-running counters, ADCs, PWM outputs
// and GPIO pins.
//
// The interfaces are compatible with TinyGo's machine package on the target
// board, and with host-side implementations (stubs, replay devices) for
// bench testing.
package devices

// Pin represents a GPIO pin (motor enable, fault input, button).
type Pin interface {
	// Get returns the current pin state (high = true, low = false).
	Get() bool

	// Set sets the pin state (high = true, low = false).
	Set(value bool)
}

// SPI represents an SPI bus in controller mode.
// Tx transmits w while receiving into r; both may be nil for one-way
// transfers, otherwise they must have the same length.
type SPI interface {
	Tx(w, r []byte) error
}

// ADC represents a multi-channel analog-to-digital converter.
// Fetch acquires one sample of every channel; Raw returns the last
// acquired value of a channel. Implementations own their DMA buffers and
// any cache maintenance around the transfer.
type ADC interface {
	// Fetch acquires a fresh sample set. It blocks at most one tick.
	Fetch() error

	// Raw returns the most recently fetched value of the given channel.
	Raw(channel int) uint16

	// Channels returns the number of channels.
	Channels() int
}

// PWM represents a single PWM output (suction fan, buzzer carrier).
type PWM interface {
	// SetDuty sets the duty cycle in [0, 1].
	SetDuty(duty float32) error
}
