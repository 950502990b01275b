package grbl

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// DefaultBaud is the baud rate of the controller's serial port.
const DefaultBaud = 115200

// OpenSerial opens the named serial port. A zero baud selects DefaultBaud.
//
// With a non-zero readTimeout, reads that time out report io.EOF, which
// Conn treats as an idle line.
func OpenSerial(name string, baud int, readTimeout time.Duration) (io.ReadWriteCloser, error) {
	if baud == 0 {
		baud = DefaultBaud
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: readTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	return p, nil
}
