package drivers

import (
	"context"

	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"
)

const rpioDriverName = "rpio"

// RpIO drives Raspberry Pi GPIO pins through /dev/gpiomem
// (memory-mapped BCM registers).
type RpIO struct {
	InvertOutputs bool

	outputs []*RpioOutput
	isReady bool
}

type RpioOutput struct {
	pin    uint8
	invert bool
}

func (ro *RpioOutput) Offset() int {
	return int(ro.pin)
}

func (ro *RpioOutput) Get() (value int, err error) {
	state := rpio.Pin(ro.pin).Read() == rpio.High
	if ro.invert {
		state = !state
	}
	if state {
		value = 1
	}

	return
}

func (ro *RpioOutput) Set(value int) error {
	state := value != 0
	if ro.invert {
		state = !state
	}
	if state {
		rpio.Pin(ro.pin).High()
	} else {
		rpio.Pin(ro.pin).Low()
	}

	return nil
}

func (rp *RpIO) Setup(ctx context.Context, outputs []int) error {
	err := rpio.Open()
	if err != nil {
		return errors.Wrapf(err, "failed to Setup rpio driver for pins: %v; ", outputs)
	}

	for _, outPin := range outputs {
		if outPin < 0 || outPin > 255 {
			return errors.Errorf("pin out of range (rpio takes uint8 pin)")
		}
		pin := rpio.Pin(outPin)
		pin.Output()
		pin.Low()
		rp.outputs = append(rp.outputs, &RpioOutput{pin: uint8(outPin), invert: rp.InvertOutputs})
	}

	rp.isReady = true
	return nil
}

func (rp *RpIO) String() string {
	return rpioDriverName
}

func (rp *RpIO) IsReady() bool {
	return rp.isReady
}

func (rp *RpIO) Close() error {
	rp.isReady = false
	for _, output := range rp.outputs {
		output.Set(0)
	}
	return rpio.Close()
}

func (rp *RpIO) GetOutput(offset int) (output DigitalOutput, err error) {
	for _, out := range rp.outputs {
		if int(out.pin) == offset {
			output = out
			return
		}
	}

	err = errors.Errorf("RpIO output (offset: %d) not found", offset)
	return
}

func (rp *RpIO) GetAllIo() (outputs []int) {
	for _, output := range rp.outputs {
		outputs = append(outputs, int(output.pin))
	}

	return
}
