package drivers

import (
	"context"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

const cdevDriverName = "cdev"
const cdevConsumer = "pinsrv"
const defaultChip = "gpiochip0"

// CdevIO drives GPIO lines through the Linux character device
// (/dev/gpiochipN). Lines are requested as outputs with initial
// value 0 and held exclusively until Close.
type CdevIO struct {
	Chip string

	chip    *gpiocdev.Chip
	outputs []*CdevOutput
	isReady bool
}

type CdevOutput struct {
	offset int
	line   *gpiocdev.Line
}

func (co *CdevOutput) Offset() int {
	return co.offset
}

func (co *CdevOutput) Get() (int, error) {
	return co.line.Value()
}

func (co *CdevOutput) Set(value int) error {
	return co.line.SetValue(value)
}

func (cd *CdevIO) Setup(ctx context.Context, outputs []int) error {
	chipName := cd.Chip
	if len(chipName) == 0 {
		chipName = defaultChip
	}

	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(cdevConsumer))
	if err != nil {
		return errors.Wrapf(err, "failed to open gpio chip %s", chipName)
	}
	cd.chip = chip

	for _, offset := range outputs {
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0))
		if err != nil {
			cd.Close()
			return errors.Wrapf(err, "failed to claim output line %d on %s", offset, chipName)
		}
		cd.outputs = append(cd.outputs, &CdevOutput{offset: offset, line: line})
	}

	cd.isReady = true
	return nil
}

func (cd *CdevIO) String() string {
	return cdevDriverName
}

func (cd *CdevIO) IsReady() bool {
	return cd.isReady
}

func (cd *CdevIO) Close() error {
	cd.isReady = false
	for _, output := range cd.outputs {
		output.line.SetValue(0)
		output.line.Close()
	}
	cd.outputs = nil

	if cd.chip == nil {
		return nil
	}
	return cd.chip.Close()
}

func (cd *CdevIO) GetOutput(offset int) (output DigitalOutput, err error) {
	for _, out := range cd.outputs {
		if out.offset == offset {
			output = out
			return
		}
	}

	err = errors.Errorf("CdevIO output (offset: %d) not found", offset)
	return
}

func (cd *CdevIO) GetAllIo() (outputs []int) {
	for _, output := range cd.outputs {
		outputs = append(outputs, output.offset)
	}

	return
}
