package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AxisConfig holds the travel limits and optional park position of one axis.
type AxisConfig struct {
	Min  int  `yaml:"min"`
	Max  int  `yaml:"max"`
	Park *int `yaml:"park,omitempty"` // nil = axis is not parked
}

// ButtonConfig controls front panel button sampling and the accelerator.
type ButtonConfig struct {
	ReadMs     int  `yaml:"read_ms"`      // BTN_READ_TIME
	Fast       bool `yaml:"fast"`         // BTN_FAST
	FastIncr   int  `yaml:"fast_incr"`    // BTN_FAST_INCR degrees per read
	FastTimeMs int  `yaml:"fast_time_ms"` // BTN_FAST_TIME
}

// Controller holds every motion and persistence tunable.
// It is read-only once loaded.
type Controller struct {
	Elevation       bool         `yaml:"elevation"`
	BaudRate        int          `yaml:"baud_rate"`
	EEPROMValid     uint16       `yaml:"eeprom_valid"`
	MotorTimeoutMs  int          `yaml:"motor_timeout_ms"`
	CalAdjustmentMs int          `yaml:"cal_adjustment_ms"`
	DebounceMs      int          `yaml:"debounce_ms"`
	EEPROMTimeoutMs int          `yaml:"eeprom_timeout_ms"`
	TickMs          int          `yaml:"tick_ms"`
	Azimuth         AxisConfig   `yaml:"azimuth"`
	ElevationLimits AxisConfig   `yaml:"elevation_limits"`
	Buttons         ButtonConfig `yaml:"buttons"`
}

// ModbusConfig describes a Modbus RTU relay/input module.
// Either Port or URL must be set.
type ModbusConfig struct {
	Port string `yaml:"port"`
	URL  string `yaml:"url"`
	// Password is sent to a remote bridge given by URL.
	Password string `yaml:"password"`
	BaudRate int    `yaml:"baud_rate"`
	SlaveID  byte   `yaml:"slave_id"`
	// Coil numbers, in AzimuthCW, AzimuthCCW, ElevationUp, ElevationDown order.
	Relays [4]uint16 `yaml:"relays"`
	// Discrete input numbers of the azimuth and elevation pulse lines.
	Pulses [2]uint16 `yaml:"pulses"`
	// Discrete input numbers in CW, CCW, Up, Down order.
	Buttons [4]uint16 `yaml:"buttons"`
	// RecordRegister is the first of three holding registers used to store
	// the position record when storage.type is "modbus".
	RecordRegister uint16 `yaml:"record_register"`
	PollMs         int    `yaml:"poll_ms"`
}

// GPIOConfig describes a Raspberry Pi wiring (BCM pin numbers).
type GPIOConfig struct {
	Relays      [4]int `yaml:"relays"`
	Pulses      [2]int `yaml:"pulses"`
	Buttons     [4]int `yaml:"buttons"`
	RelayActive string `yaml:"relay_active"` // "high" (default) or "low"
	PollMs      int    `yaml:"poll_ms"`
}

// HardwareConfig selects the I/O backend.
type HardwareConfig struct {
	Type   string       `yaml:"type"` // "sim", "modbus" or "gpio"
	Modbus ModbusConfig `yaml:"modbus"`
	GPIO   GPIOConfig   `yaml:"gpio"`
}

// StorageConfig selects where the position record lives.
type StorageConfig struct {
	Type string `yaml:"type"` // "file", "modbus" or "memory"
	Path string `yaml:"path"`
}

// Config aggregates the whole controller configuration.
type Config struct {
	Controller Controller     `yaml:"controller"`
	Hardware   HardwareConfig `yaml:"hardware"`
	Storage    StorageConfig  `yaml:"storage"`
}

// IntPtr is a helper for building park positions.
func IntPtr(v int) *int {
	return &v
}

// DefaultController returns the stock SPID.h settings.
func DefaultController() Controller {
	return Controller{
		Elevation:       true,
		BaudRate:        9600,
		EEPROMValid:     12345,
		MotorTimeoutMs:  700,
		CalAdjustmentMs: 50,
		DebounceMs:      10,
		EEPROMTimeoutMs: 10000,
		TickMs:          5,
		Azimuth:         AxisConfig{Min: 0, Max: 360, Park: IntPtr(42)},
		ElevationLimits: AxisConfig{Min: 0, Max: 90, Park: IntPtr(0)},
		Buttons: ButtonConfig{
			ReadMs:     200,
			Fast:       true,
			FastIncr:   5,
			FastTimeMs: 2000,
		},
	}
}

// Default returns a configuration that runs against the simulator.
func Default() Config {
	return Config{
		Controller: DefaultController(),
		Hardware: HardwareConfig{
			Type: "sim",
			Modbus: ModbusConfig{
				BaudRate:       19200,
				SlaveID:        1,
				Relays:         [4]uint16{0, 1, 2, 3},
				Pulses:         [2]uint16{0, 1},
				Buttons:        [4]uint16{2, 3, 4, 5},
				RecordRegister: 0,
				PollMs:         2,
			},
			GPIO: GPIOConfig{
				Relays:      [4]int{17, 27, 22, 23},
				Pulses:      [2]int{5, 6},
				Buttons:     [4]int{12, 16, 20, 21},
				RelayActive: "high",
				PollMs:      1,
			},
		},
		Storage: StorageConfig{Type: "memory"},
	}
}

// Load reads a YAML file on top of Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := c.Controller.Validate(); err != nil {
		return err
	}
	switch c.Hardware.Type {
	case "sim":
	case "gpio":
		g := c.Hardware.GPIO
		if g.RelayActive != "high" && g.RelayActive != "low" {
			return fmt.Errorf("hardware.gpio.relay_active must be high or low, got %q", g.RelayActive)
		}
		if g.PollMs <= 0 {
			return fmt.Errorf("hardware.gpio.poll_ms must be > 0, got %d", g.PollMs)
		}
	case "modbus":
		if c.Hardware.Modbus.Port == "" && c.Hardware.Modbus.URL == "" {
			return errors.New("hardware.modbus: port or url is required")
		}
	default:
		return fmt.Errorf("unknown hardware.type %q", c.Hardware.Type)
	}
	switch c.Storage.Type {
	case "memory":
	case "file":
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for file storage")
		}
	case "modbus":
		if c.Hardware.Type != "modbus" {
			return errors.New("storage.type modbus requires hardware.type modbus")
		}
	default:
		return fmt.Errorf("unknown storage.type %q", c.Storage.Type)
	}
	return nil
}

func (a AxisConfig) validate(name string, lo, hi int) error {
	if a.Min < lo || a.Max > hi {
		return fmt.Errorf("%s: limits must be within %d..%d, got %d..%d", name, lo, hi, a.Min, a.Max)
	}
	if a.Min >= a.Max {
		return fmt.Errorf("%s: min %d must be below max %d", name, a.Min, a.Max)
	}
	if a.Park != nil && (*a.Park < a.Min || *a.Park > a.Max) {
		return fmt.Errorf("%s: park %d outside %d..%d", name, *a.Park, a.Min, a.Max)
	}
	return nil
}

// Validate checks limits and timing values.
func (c *Controller) Validate() error {
	if err := c.Azimuth.validate("azimuth", 0, 360); err != nil {
		return err
	}
	if c.Elevation {
		if err := c.ElevationLimits.validate("elevation_limits", 0, 90); err != nil {
			return err
		}
	}
	for _, v := range []struct {
		name  string
		value int
	}{
		{"baud_rate", c.BaudRate},
		{"motor_timeout_ms", c.MotorTimeoutMs},
		{"cal_adjustment_ms", c.CalAdjustmentMs},
		{"debounce_ms", c.DebounceMs},
		{"eeprom_timeout_ms", c.EEPROMTimeoutMs},
		{"tick_ms", c.TickMs},
		{"buttons.read_ms", c.Buttons.ReadMs},
	} {
		if v.value <= 0 {
			return fmt.Errorf("%s must be > 0, got %d", v.name, v.value)
		}
	}
	if c.TickMs > c.DebounceMs {
		return fmt.Errorf("tick_ms %d must not exceed debounce_ms %d", c.TickMs, c.DebounceMs)
	}
	if c.Buttons.Fast {
		if c.Buttons.FastIncr < 1 {
			return fmt.Errorf("buttons.fast_incr must be >= 1, got %d", c.Buttons.FastIncr)
		}
		if c.Buttons.FastTimeMs <= 0 {
			return fmt.Errorf("buttons.fast_time_ms must be > 0, got %d", c.Buttons.FastTimeMs)
		}
	}
	return nil
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// MotorTimeout is the pulse gap that counts as a stall.
func (c *Controller) MotorTimeout() time.Duration { return ms(c.MotorTimeoutMs) }

// CalAdjustment is the endstop backoff relay-on time.
func (c *Controller) CalAdjustment() time.Duration { return ms(c.CalAdjustmentMs) }

// Debounce is the minimum gap between accepted pulses on one line.
func (c *Controller) Debounce() time.Duration { return ms(c.DebounceMs) }

// EEPROMTimeout is how long the rotator must rest before its position is saved.
func (c *Controller) EEPROMTimeout() time.Duration { return ms(c.EEPROMTimeoutMs) }

// Tick is the control loop period.
func (c *Controller) Tick() time.Duration { return ms(c.TickMs) }

// ButtonRead is the button sampling period.
func (c *Controller) ButtonRead() time.Duration { return ms(c.Buttons.ReadMs) }

// ButtonFastTime is the hold time after which the accelerator kicks in.
func (c *Controller) ButtonFastTime() time.Duration { return ms(c.Buttons.FastTimeMs) }
