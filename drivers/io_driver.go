package drivers

import (
	"context"
)

// IoDriver claims a set of output lines on one piece of hardware.
// Setup must claim every requested line or fail as a whole; a driver
// returning an error from Setup leaves nothing usable behind.
type IoDriver interface {
	Setup(ctx context.Context, outputs []int) error
	Close() error
	String() string
	IsReady() bool
	GetOutput(offset int) (DigitalOutput, error)
	GetAllIo() (outputs []int)
}

// DigitalOutput is a single claimed output line. Drivers are not
// guaranteed safe for concurrent calls across lines; callers must
// serialize access externally.
type DigitalOutput interface {
	Offset() int
	Get() (int, error)
	Set(value int) error
}
