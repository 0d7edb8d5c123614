package drivers

import (
	"context"
	"fmt"
	"io"

	"errors"
)

// MockIoDriver keeps pin state in memory. It stands in for real
// hardware in tests and when developing off-target; FailReads and
// FailWrites inject hardware faults into every claimed line.
type MockIoDriver struct {
	FailReads  bool
	FailWrites bool

	outputs []*MockOutput
	ready   bool
}

type MockOutput struct {
	state  int
	offset int

	failReads  bool
	failWrites bool

	writeTo          io.Writer
	writeStateChange bool
}

func (mo *MockOutput) Offset() int {
	return mo.offset
}

func (mo *MockOutput) Get() (int, error) {
	if mo.failReads {
		return 0, errors.New("mock read failure")
	}
	return mo.state, nil
}

func (mo *MockOutput) Set(value int) error {
	if mo.failWrites {
		return errors.New("mock write failure")
	}
	if mo.writeStateChange && value != mo.state {
		fmt.Fprintf(mo.writeTo, "[pin %d] state changed to %d\n", mo.offset, value)
	}
	mo.state = value
	return nil
}

func (md *MockIoDriver) Setup(ctx context.Context, outputs []int) error {
	for _, outPin := range outputs {
		md.outputs = append(md.outputs, &MockOutput{
			offset:     outPin,
			failReads:  md.FailReads,
			failWrites: md.FailWrites,
		})
	}
	md.ready = true
	return nil
}

func (md *MockIoDriver) Close() error {
	md.ready = false
	return nil
}

func (md *MockIoDriver) String() string {
	return "mock_driver"
}

func (md *MockIoDriver) IsReady() bool {
	return md.ready
}

func (md *MockIoDriver) GetOutput(offset int) (DigitalOutput, error) {
	for _, output := range md.outputs {
		if offset == output.offset {
			return output, nil
		}
	}
	return nil, fmt.Errorf("mock output %d not found", offset)
}

func (md *MockIoDriver) GetAllIo() (outputs []int) {
	for _, output := range md.outputs {
		outputs = append(outputs, output.offset)
	}
	return
}

// MonitorStateChanges makes every output report state transitions to
// writer, one line per change.
func (md *MockIoDriver) MonitorStateChanges(writer io.Writer) {
	for _, out := range md.outputs {
		out.writeTo = writer
		out.writeStateChange = true
	}
}
