package serial

import (
	"bufio"
	"io"
)

// Port is the line-oriented transport a Link reads and writes. A real
// port wraps an os.File opened against a tty device; SimPort is a
// drop-in, in-memory replacement used in simulator mode and tests.
type Port interface {
	io.Reader
	io.Writer
	io.Closer
}

// lineReader wraps a Port with a bufio.Scanner sized for the largest
// frame the firmware ever emits.
func newLineReader(p Port) *bufio.Scanner {
	s := bufio.NewScanner(p)
	s.Buffer(make([]byte, 0, 4096), 64*1024)
	return s
}
