package machine

import (
	"fmt"
	"os"
)

// NopFan is used when no fan output is configured.
type NopFan struct{}

func (NopFan) SetFan(bool) error { return nil }

// GPIOFan drives the fan through a GPIO value file, writing "1" or "0".
type GPIOFan struct {
	Path string
}

func (f GPIOFan) SetFan(on bool) error {
	val := "0\n"
	if on {
		val = "1\n"
	}
	if err := os.WriteFile(f.Path, []byte(val), 0644); err != nil {
		return fmt.Errorf("set fan: %w", err)
	}
	return nil
}
