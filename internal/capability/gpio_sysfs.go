package capability

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"moneychanger/internal/core"
)

// Pin assignments, mirroring the kiosk's reference wiring diagram:
//
//	GPIO17 -> L298N IN1 (motor direction 1)
//	GPIO27 -> L298N IN2 (motor direction 2)
//	GPIO22 -> L298N ENA (PWM enable, driven as a plain on/off line here)
//	GPIO5  -> IR sensor 1 (bill entry)    — LOW = detected
//	GPIO6  -> IR sensor 2 (bill position) — LOW = detected
//	GPIO23 -> UV LED relay    — HIGH = on
//	GPIO24 -> White LED MOSFET — HIGH = on
const (
	pinMotorIN1   = 17
	pinMotorIN2   = 27
	pinMotorENA   = 22
	pinIREntry    = 5
	pinIRPosition = 6
	pinUVLed      = 23
	pinWhiteLed   = 24
)

// SysfsGpio drives the bill acceptor's motor, sensors, and LEDs through
// the Linux sysfs GPIO interface (/sys/class/gpio). There is no
// equivalent Go GPIO library in this project's dependency set, so this
// implementation talks to the kernel's exported-pin files directly.
type SysfsGpio struct {
	basePath string
	exported []int
}

// NewSysfsGpio constructs a SysfsGpio rooted at basePath, normally
// "/sys/class/gpio".
func NewSysfsGpio(basePath string) *SysfsGpio {
	return &SysfsGpio{basePath: basePath}
}

func (g *SysfsGpio) Setup(ctx context.Context) error {
	outputs := []int{pinMotorIN1, pinMotorIN2, pinMotorENA, pinUVLed, pinWhiteLed}
	inputs := []int{pinIREntry, pinIRPosition}
	for _, pin := range outputs {
		if err := g.export(pin, "out"); err != nil {
			return err
		}
	}
	for _, pin := range inputs {
		if err := g.export(pin, "in"); err != nil {
			return err
		}
	}
	return nil
}

func (g *SysfsGpio) Cleanup(ctx context.Context) error {
	for _, pin := range g.exported {
		_ = os.WriteFile(g.basePath+"/unexport", []byte(strconv.Itoa(pin)), 0o200)
	}
	g.exported = nil
	return nil
}

func (g *SysfsGpio) export(pin int, direction string) error {
	if err := os.WriteFile(g.basePath+"/export", []byte(strconv.Itoa(pin)), 0o200); err != nil {
		return fmt.Errorf("export gpio%d: %w", pin, err)
	}
	if err := os.WriteFile(g.pinPath(pin, "direction"), []byte(direction), 0o200); err != nil {
		return fmt.Errorf("set direction gpio%d: %w", pin, err)
	}
	g.exported = append(g.exported, pin)
	return nil
}

func (g *SysfsGpio) pinPath(pin int, file string) string {
	return fmt.Sprintf("%s/gpio%d/%s", g.basePath, pin, file)
}

func (g *SysfsGpio) setValue(pin int, high bool) error {
	v := "0"
	if high {
		v = "1"
	}
	return os.WriteFile(g.pinPath(pin, "value"), []byte(v), 0o200)
}

func (g *SysfsGpio) readValue(pin int) (bool, error) {
	data, err := os.ReadFile(g.pinPath(pin, "value"))
	if err != nil {
		return false, err
	}
	return len(data) > 0 && data[0] == '1', nil
}

func (g *SysfsGpio) MotorForward(ctx context.Context, speed int) error {
	if err := g.setValue(pinMotorIN1, true); err != nil {
		return err
	}
	if err := g.setValue(pinMotorIN2, false); err != nil {
		return err
	}
	return g.setValue(pinMotorENA, speed > 0)
}

func (g *SysfsGpio) MotorReverse(ctx context.Context, speed int) error {
	if err := g.setValue(pinMotorIN1, false); err != nil {
		return err
	}
	if err := g.setValue(pinMotorIN2, true); err != nil {
		return err
	}
	return g.setValue(pinMotorENA, speed > 0)
}

func (g *SysfsGpio) MotorStop(ctx context.Context) error {
	if err := g.setValue(pinMotorIN1, false); err != nil {
		return err
	}
	if err := g.setValue(pinMotorIN2, false); err != nil {
		return err
	}
	return g.setValue(pinMotorENA, false)
}

// IsBillAtEntry reports the entry IR sensor; LOW means detected.
func (g *SysfsGpio) IsBillAtEntry(ctx context.Context) (bool, error) {
	high, err := g.readValue(pinIREntry)
	return !high, err
}

// IsBillInPosition reports the camera-position IR sensor; LOW means
// detected.
func (g *SysfsGpio) IsBillInPosition(ctx context.Context) (bool, error) {
	high, err := g.readValue(pinIRPosition)
	return !high, err
}

func (g *SysfsGpio) UVLedOn(ctx context.Context) error  { return g.setValue(pinUVLed, true) }
func (g *SysfsGpio) UVLedOff(ctx context.Context) error { return g.setValue(pinUVLed, false) }

func (g *SysfsGpio) WhiteLedOn(ctx context.Context) error  { return g.setValue(pinWhiteLed, true) }
func (g *SysfsGpio) WhiteLedOff(ctx context.Context) error { return g.setValue(pinWhiteLed, false) }

var _ core.Gpio = (*SysfsGpio)(nil)
