package drivers

import (
	"context"

	"github.com/pkg/errors"
	"github.com/racerxdl/go-mcp23017"
)

const mcpioDriverName = "mcpio"

// McpIO drives output pins on an MCP23017 I2C port expander.
type McpIO struct {
	BusNo         uint8
	DevNo         uint8
	InvertOutputs bool

	device  *mcp23017.Device
	outputs []*McpOutput
	isReady bool
}

type McpOutput struct {
	pin    uint8
	invert bool

	device *mcp23017.Device
}

func (mout *McpOutput) Offset() int {
	return int(mout.pin)
}

func (mout *McpOutput) Get() (value int, err error) {
	rawState, err := mout.device.DigitalRead(mout.pin)
	if err != nil {
		return
	}

	state := bool(rawState)
	if mout.invert {
		state = !state
	}
	if state {
		value = 1
	}

	return
}

func (mout *McpOutput) Set(value int) (err error) {
	state := value != 0
	if mout.invert {
		state = !state
	}

	err = mout.device.DigitalWrite(mout.pin, mcp23017.PinLevel(state))

	return
}

func (mcp *McpIO) Setup(ctx context.Context, outputs []int) (err error) {
	mcp.device, err = mcp23017.Open(mcp.BusNo, mcp.DevNo)
	if err != nil {
		return errors.Wrapf(err, "failed to open mcp23017 device (bus %d dev %d)", mcp.BusNo, mcp.DevNo)
	}

	for _, outputPin := range outputs {
		if outputPin < 0 || outputPin > 255 {
			err = errors.Errorf("output pin out of range (mcpio takes uint8 pin id)")
			return
		}
		err = mcp.device.PinMode(uint8(outputPin), mcp23017.OUTPUT)
		if err != nil {
			return
		}
		err = mcp.device.DigitalWrite(uint8(outputPin), mcp23017.PinLevel(mcp.InvertOutputs))
		if err != nil {
			return
		}
		mcp.outputs = append(mcp.outputs, &McpOutput{pin: uint8(outputPin), invert: mcp.InvertOutputs, device: mcp.device})
	}

	mcp.isReady = true

	return
}

func (mcp *McpIO) String() string {
	return mcpioDriverName
}

func (mcp *McpIO) IsReady() bool {
	return mcp.isReady
}

func (mcp *McpIO) Close() error {
	mcp.isReady = false
	for _, output := range mcp.outputs {
		output.Set(0)
	}
	return mcp.device.Close()
}

func (mcp *McpIO) GetOutput(offset int) (output DigitalOutput, err error) {
	for _, out := range mcp.outputs {
		if int(out.pin) == offset {
			output = out
			return
		}
	}

	err = errors.Errorf("McpIO output (offset: %d) not found", offset)
	return
}

func (mcp *McpIO) GetAllIo() (outputs []int) {
	for _, output := range mcp.outputs {
		outputs = append(outputs, int(output.pin))
	}

	return
}
