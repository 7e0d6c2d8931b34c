package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultMatchesStockController(t *testing.T) {
	c := DefaultController()
	if err := c.Validate(); err != nil {
		t.Fatalf("default controller invalid: %v", err)
	}
	for _, test := range []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"MotorTimeout", c.MotorTimeout(), 700 * time.Millisecond},
		{"CalAdjustment", c.CalAdjustment(), 50 * time.Millisecond},
		{"Debounce", c.Debounce(), 10 * time.Millisecond},
		{"EEPROMTimeout", c.EEPROMTimeout(), 10 * time.Second},
		{"ButtonRead", c.ButtonRead(), 200 * time.Millisecond},
		{"ButtonFastTime", c.ButtonFastTime(), 2 * time.Second},
	} {
		if test.got != test.want {
			t.Errorf("%s = %v, want %v", test.name, test.got, test.want)
		}
	}
	if c.BaudRate != 9600 || c.EEPROMValid != 12345 || c.Buttons.FastIncr != 5 {
		t.Errorf("unexpected defaults: %+v", c)
	}
	if *c.Azimuth.Park != 42 || *c.ElevationLimits.Park != 0 {
		t.Errorf("unexpected park positions: az=%d el=%d", *c.Azimuth.Park, *c.ElevationLimits.Park)
	}
}

func TestParseOverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
controller:
  elevation: false
  motor_timeout_ms: 900
  azimuth:
    min: 0
    max: 350
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := DefaultController()
	want.Elevation = false
	want.MotorTimeoutMs = 900
	want.Azimuth = AxisConfig{Min: 0, Max: 350, Park: IntPtr(42)}
	if diff := cmp.Diff(want, cfg.Controller); diff != "" {
		t.Errorf("unexpected controller config: got(-)/want(+):\n%s", diff)
	}
	if cfg.Hardware.Type != "sim" || cfg.Storage.Type != "memory" {
		t.Errorf("unexpected backend defaults: %+v %+v", cfg.Hardware, cfg.Storage)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spid.yaml")
	data := []byte(`
hardware:
  type: modbus
  modbus:
    port: /dev/ttyUSB1
storage:
  type: modbus
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Hardware.Modbus.Port != "/dev/ttyUSB1" || cfg.Hardware.Modbus.SlaveID != 1 {
		t.Errorf("unexpected modbus config: %+v", cfg.Hardware.Modbus)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of missing file succeeded")
	}
}

func TestValidationErrors(t *testing.T) {
	for _, test := range []struct {
		name string
		yaml string
		want string
	}{
		{"azimuth above 360", "controller: {azimuth: {min: 0, max: 400}}", "azimuth: limits"},
		{"elevation above 90", "controller: {elevation_limits: {min: 0, max: 180}}", "elevation_limits: limits"},
		{"inverted limits", "controller: {azimuth: {min: 200, max: 100}}", "min 200 must be below max 100"},
		{"park out of range", "controller: {azimuth: {min: 0, max: 360, park: 361}}", "park 361"},
		{"zero timeout", "controller: {motor_timeout_ms: 0}", "motor_timeout_ms"},
		{"tick above debounce", "controller: {tick_ms: 20}", "tick_ms 20"},
		{"fast increment", "controller: {buttons: {fast: true, fast_incr: 0}}", "fast_incr"},
		{"unknown hardware", "hardware: {type: can}", `unknown hardware.type "can"`},
		{"modbus without port", "hardware: {type: modbus}", "port or url"},
		{"gpio polarity", "hardware: {type: gpio, gpio: {relay_active: sideways}}", "relay_active"},
		{"file without path", "storage: {type: file}", "storage.path"},
		{"modbus storage on sim", "storage: {type: modbus}", "requires hardware.type modbus"},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse([]byte(test.yaml))
			if err == nil {
				t.Fatalf("Parse succeeded, want error containing %q", test.want)
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("error %q does not contain %q", err, test.want)
			}
		})
	}
}

func TestElevationDisabledSkipsElevationLimits(t *testing.T) {
	c := DefaultController()
	c.Elevation = false
	c.ElevationLimits = AxisConfig{Min: 10, Max: 5}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
