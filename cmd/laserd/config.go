package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mastercactapus/lasercard/actuator"
	"github.com/mastercactapus/lasercard/machine"
	"github.com/mastercactapus/lasercard/machine/grbl"
	"github.com/mastercactapus/lasercard/machine/grbl/grbltest"
	"github.com/mastercactapus/lasercard/remote"
)

// Config is the daemon configuration file.
type Config struct {
	Addr string `yaml:"addr"`

	Serial   SerialConfig   `yaml:"serial"`
	Actuator ActuatorConfig `yaml:"actuator"`

	// FanGPIO is the GPIO value file of the fan output. Empty disables the
	// fan.
	FanGPIO string `yaml:"fan_gpio"`

	Programs  string `yaml:"programs"`
	Orders    string `yaml:"orders"`
	History   string `yaml:"history"`
	Glyphs    string `yaml:"glyphs"`
	Templates string `yaml:"templates"`
	Layouts   string `yaml:"layouts"`

	Tick       time.Duration `yaml:"tick"`
	CoolDown   time.Duration `yaml:"cool_down"`
	StatusPoll time.Duration `yaml:"status_poll"`

	CardIn  []machine.Step `yaml:"card_in"`
	CardOut []machine.Step `yaml:"card_out"`
}

type SerialConfig struct {
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	AckDeadline time.Duration `yaml:"ack_deadline"`
	MaxAcks     int           `yaml:"max_acks"`

	// Simulate replaces the port with an in-memory controller.
	Simulate bool `yaml:"simulate"`
}

type ActuatorConfig struct {
	// URL of the arm's websocket. Empty disables the arm.
	URL   string        `yaml:"url"`
	Retry time.Duration `yaml:"retry"`
}

// DefaultConfig returns the configuration used for missing keys.
func DefaultConfig() Config {
	return Config{
		Addr: ":9091",
		Serial: SerialConfig{
			Port:        "/dev/ttyUSB0",
			Baud:        grbl.DefaultBaud,
			ReadTimeout: 100 * time.Millisecond,
			AckDeadline: grbl.DefaultAckDeadline,
			MaxAcks:     grbl.DefaultMaxAcks,
		},
		Actuator: ActuatorConfig{
			Retry: actuator.DefaultRetry,
		},
		Programs:   "./data/gcode",
		Orders:     "./data/orders",
		History:    "./data/history.sqlite3",
		Glyphs:     "./data/glyphs",
		Templates:  "./data/templates",
		Layouts:    "./data/layouts.yaml",
		Tick:       remote.DefaultPeriod,
		CoolDown:   machine.DefaultCoolDown,
		StatusPoll: time.Second,
	}
}

// LoadConfig reads a YAML file over DefaultConfig. Environment variables
// referenced as ${VAR} or $VAR are expanded before parsing. A missing file
// yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("laserd: load config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, fmt.Errorf("laserd: parse config: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("laserd: config: addr is required")
	}
	if c.Serial.Port == "" && !c.Serial.Simulate {
		return fmt.Errorf("laserd: config: serial.port is required unless serial.simulate is set")
	}
	if c.Serial.MaxAcks < 0 {
		return fmt.Errorf("laserd: config: serial.max_acks must not be negative")
	}
	if c.Programs == "" {
		return fmt.Errorf("laserd: config: programs is required")
	}
	return nil
}

// MachineConfig translates c into a machine configuration.
func (c Config) MachineConfig() machine.Config {
	mc := machine.Config{
		AckDeadline: c.Serial.AckDeadline,
		MaxAcks:     c.Serial.MaxAcks,
		CoolDown:    c.CoolDown,
		StatusPoll:  c.StatusPoll,
		CardIn:      c.CardIn,
		CardOut:     c.CardOut,
	}

	serial := c.Serial
	if serial.Simulate {
		acks := serial.MaxAcks
		if acks == 0 {
			acks = grbl.DefaultMaxAcks
		}
		mc.Open = func() (io.ReadWriteCloser, error) { return grbltest.New(acks), nil }
	} else {
		mc.Open = func() (io.ReadWriteCloser, error) {
			return grbl.OpenSerial(serial.Port, serial.Baud, serial.ReadTimeout)
		}
	}

	if c.FanGPIO != "" {
		mc.Fan = machine.GPIOFan{Path: c.FanGPIO}
	}

	return mc
}
