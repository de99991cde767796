//go:build linux && !sim

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rtrace/linelight/x/control/trace"
	"github.com/rtrace/linelight/x/devices"
	"github.com/rtrace/linelight/x/devices/encoder"
	"github.com/rtrace/linelight/x/devices/lsm6dsrx"
	"github.com/rtrace/linelight/x/devices/max11128"
	"github.com/rtrace/linelight/x/devices/mb85rs"
)

// Board wiring for the embedded Linux carrier.
const (
	spiIMU  = "/dev/spidev1.0"
	spiLine = "/dev/spidev2.0"
	spiFram = "/dev/spidev0.0"

	counterRight = "/sys/bus/counter/devices/counter0/count0/count"
	counterLeft  = "/sys/bus/counter/devices/counter1/count0/count"

	iioDevice = "/sys/bus/iio/devices/iio:device0"

	pwmMotorRight = "/sys/class/pwm/pwmchip0/pwm0"
	pwmMotorLeft  = "/sys/class/pwm/pwmchip0/pwm1"
	pwmSuction    = "/sys/class/pwm/pwmchip1/pwm0"

	gpioMotorEnable = "/sys/class/gpio/gpio17/value"
	gpioMotorBrake  = "/sys/class/gpio/gpio18/value"
	gpioButton      = "/sys/class/gpio/gpio27/value"

	ledIndicator = "/sys/class/leds/linelight:indicator%d/brightness"
	buzzerPWM    = "/sys/class/pwm/pwmchip1/pwm1"
)

func openBoard() (*board, error) {
	b := &board{}

	imuBus, err := devices.NewSPI(spiIMU)
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, imuBus.Close)
	imu := lsm6dsrx.New(imuBus)
	if err := imu.Configure(); err != nil {
		b.Close()
		return nil, err
	}
	b.imu = imu

	lineBus, err := devices.NewSPI(spiLine)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.closers = append(b.closers, lineBus.Close)
	lineADC, err := max11128.New(lineBus, max11128.DefaultConfig())
	if err != nil {
		b.Close()
		return nil, err
	}
	if err := lineADC.Configure(); err != nil {
		b.Close()
		return nil, err
	}
	b.lineADC = lineADC

	framBus, err := devices.NewSPI(spiFram)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.closers = append(b.closers, framBus.Close)
	b.storeDev = mb85rs.New(framBus)

	b.wheels = encoder.New(
		&sysfsCounter{path: counterRight},
		&sysfsCounter{path: counterLeft},
		encoder.DefaultConfig(),
	)
	b.markerADC = &iioADC{channels: []string{
		iioDevice + "/in_voltage4_raw",
		iioDevice + "/in_voltage5_raw",
	}}
	b.powerADC = &iioADC{channels: []string{
		iioDevice + "/in_voltage0_raw",
		iioDevice + "/in_voltage1_raw",
		iioDevice + "/in_voltage2_raw",
	}}

	b.motor = &sysfsMotor{
		right:  pwmMotorRight,
		left:   pwmMotorLeft,
		enable: gpioMotorEnable,
		brake:  gpioMotorBrake,
	}
	b.suction = &sysfsSuction{pwm: pwmSuction}
	b.operator = &sysfsOperator{button: gpioButton}
	return b, nil
}

// sysfsCounter reads a Linux counter-subsystem channel.
type sysfsCounter struct {
	path string
}

func (c *sysfsCounter) Count() (uint16, error) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

// iioADC reads IIO sysfs raw voltage channels.
type iioADC struct {
	channels []string
	raw      []uint16
}

func (a *iioADC) Fetch() error {
	if a.raw == nil {
		a.raw = make([]uint16, len(a.channels))
	}
	for i, path := range a.channels {
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		v, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
		if err != nil {
			return err
		}
		a.raw[i] = uint16(v)
	}
	return nil
}

func (a *iioADC) Raw(channel int) uint16 { return a.raw[channel] }
func (a *iioADC) Channels() int          { return len(a.channels) }

// sysfsMotor drives the H-bridge through two PWM channels and the
// enable/brake lines.
type sysfsMotor struct {
	right, left   string
	enable, brake string
}

const pwmPeriodNs = 50000 // 20 kHz

func (m *sysfsMotor) SetDuty(right, left float32) {
	writeSysfs(m.brake, "0")
	setPWMSigned(m.right, right)
	setPWMSigned(m.left, left)
}

func (m *sysfsMotor) Brake() {
	setPWMSigned(m.right, 0)
	setPWMSigned(m.left, 0)
	writeSysfs(m.brake, "1")
}

func (m *sysfsMotor) SetEnable(enabled bool) {
	if enabled {
		writeSysfs(m.enable, "1")
	} else {
		writeSysfs(m.enable, "0")
	}
}

// sysfsSuction drives the downforce fan PWM.
type sysfsSuction struct {
	pwm  string
	duty float32
}

func (s *sysfsSuction) Enable()  { setPWM(s.pwm, s.duty) }
func (s *sysfsSuction) Disable() { setPWM(s.pwm, 0) }
func (s *sysfsSuction) SetDuty(duty float32) {
	s.duty = clamp01(duty)
	setPWM(s.pwm, s.duty)
}

// sysfsOperator polls the button line; the indicator LEDs and buzzer hang
// off sysfs LEDs and a PWM channel.
type sysfsOperator struct {
	button string
}

func (o *sysfsOperator) Pressed() bool {
	raw, err := os.ReadFile(o.button)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(raw)) == "0" // active low
}

func (o *sysfsOperator) WaitPress(timeout time.Duration) time.Duration {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for !o.Pressed() {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return 0
		}
		time.Sleep(10 * time.Millisecond)
	}
	held := time.Now()
	for o.Pressed() {
		time.Sleep(10 * time.Millisecond)
	}
	return time.Since(held)
}

func (o *sysfsOperator) SetIndicator(bits, mask uint8) {
	for i := 0; i < 8; i++ {
		if mask&(1<<i) == 0 {
			continue
		}
		value := "0"
		if bits&(1<<i) != 0 {
			value = "255"
		}
		writeSysfs(fmt.Sprintf(ledIndicator, i), value)
	}
}

func (o *sysfsOperator) SetBuzzer(freqHz, durationMs uint16) {
	if freqHz == 0 {
		return
	}
	period := int(time.Second / time.Duration(freqHz))
	writeSysfs(buzzerPWM+"/period", strconv.Itoa(period))
	writeSysfs(buzzerPWM+"/duty_cycle", strconv.Itoa(period/2))
	writeSysfs(buzzerPWM+"/enable", "1")
	time.AfterFunc(time.Duration(durationMs)*time.Millisecond, func() {
		writeSysfs(buzzerPWM+"/enable", "0")
	})
}

func (o *sysfsOperator) Warn() {
	o.SetIndicator(0xff, 0xff)
	o.SetBuzzer(4000, 500)
}

func (o *sysfsOperator) Fatal() {
	for {
		o.SetIndicator(0xff, 0xff)
		time.Sleep(250 * time.Millisecond)
		o.SetIndicator(0x00, 0xff)
		time.Sleep(250 * time.Millisecond)
	}
}

func setPWMSigned(pwm string, duty float32) {
	// Sign selects the half-bridge polarity line exposed next to the
	// channel; magnitude drives the duty.
	if duty >= 0 {
		writeSysfs(pwm+"/polarity", "normal")
	} else {
		writeSysfs(pwm+"/polarity", "inversed")
		duty = -duty
	}
	setPWM(pwm, duty)
}

func setPWM(pwm string, duty float32) {
	writeSysfs(pwm+"/period", strconv.Itoa(pwmPeriodNs))
	writeSysfs(pwm+"/duty_cycle", strconv.Itoa(int(clamp01(duty)*pwmPeriodNs)))
	writeSysfs(pwm+"/enable", "1")
}

func writeSysfs(path, value string) {
	_ = os.WriteFile(path, []byte(value), 0o644)
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var _ trace.Motor = (*sysfsMotor)(nil)
