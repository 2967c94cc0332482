package serial

import (
	"fmt"
	"os"
)

// TTYPort is a real serial device opened by path, for a production kiosk
// talking to its bill or coin controller over USB-serial. There is no Go
// serial/termios library anywhere in this project's dependency set, so the
// device node is opened directly; the controller firmware is expected to
// already be configured for line discipline at its fixed baud rate (most
// USB-CDC bill/coin controllers ignore baud entirely), matching how
// SysfsGpio talks straight to /sys/class/gpio rather than reaching for a
// driver SDK.
type TTYPort struct {
	path string
	file *os.File
}

// OpenTTYPort opens the device node at path for simultaneous read/write.
func OpenTTYPort(path string) (*TTYPort, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return &TTYPort{path: path, file: f}, nil
}

func (p *TTYPort) Read(b []byte) (int, error)  { return p.file.Read(b) }
func (p *TTYPort) Write(b []byte) (int, error) { return p.file.Write(b) }
func (p *TTYPort) Close() error                { return p.file.Close() }

var _ Port = (*TTYPort)(nil)
