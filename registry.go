package pinsrv

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/hubertat/pinsrv/drivers"
)

// Binding pairs one configured pin with its claimed output line and
// symbolic name. Names do not have to be unique; several bindings may
// share one.
type Binding struct {
	Index  int
	Offset int
	Name   string

	output drivers.DigitalOutput
}

// Registry is the ordered collection of all bindings for the process
// lifetime. Every read and write goes through a single internal mutex:
// the driver APIs underneath are not safe for concurrent calls across
// lines, and the guard also keeps read-modify-write sequences from
// interleaving. Line handles never leave the registry.
type Registry struct {
	mu       sync.Mutex
	bindings []Binding
	logger   *log.Logger
}

// BindPins builds a registry from a driver that already claimed the
// given pins. Binding order follows configuration order; any pin the
// driver cannot hand out fails the whole call.
func BindPins(driver drivers.IoDriver, pins []int, names []string) (*Registry, error) {
	if len(pins) != len(names) {
		return nil, errors.Errorf("pin count (%d) does not match name count (%d)", len(pins), len(names))
	}
	if !driver.IsReady() {
		return nil, errors.Errorf("driver %s not set up", driver)
	}

	reg := &Registry{
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "registry",
			Level:  log.GetLevel(),
		}),
	}

	for ix, pin := range pins {
		output, err := driver.GetOutput(pin)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to bind pin %d (%s)", pin, names[ix])
		}
		reg.bindings = append(reg.bindings, Binding{
			Index:  ix,
			Offset: output.Offset(),
			Name:   names[ix],
			output: output,
		})
	}

	return reg, nil
}

func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return len(reg.bindings)
}

// Value returns the state of the binding at index as "0", "1" or
// "err". The second return is false when index is out of range.
func (reg *Registry) Value(index int) (string, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if index < 0 || index >= len(reg.bindings) {
		return "", false
	}

	return reg.readLocked(reg.bindings[index]), true
}

// SetValue writes state to the binding at index. Hardware write
// failures are swallowed; they only show up in the debug log. Returns
// false when index is out of range.
func (reg *Registry) SetValue(index, state int) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if index < 0 || index >= len(reg.bindings) {
		return false
	}

	reg.writeLocked(reg.bindings[index], state)
	return true
}

// ValueByName returns the state of the last binding (in registry
// order) whose name matches. Earlier aliases are read too, but the
// last one wins.
func (reg *Registry) ValueByName(name string) (value string, found bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for _, binding := range reg.bindings {
		if binding.Name == name {
			value = reg.readLocked(binding)
			found = true
		}
	}

	return
}

// SetByName writes state to every binding whose name matches. Returns
// false when no binding carries the name.
func (reg *Registry) SetByName(name string, state int) (found bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for _, binding := range reg.bindings {
		if binding.Name == name {
			reg.writeLocked(binding, state)
			found = true
		}
	}

	return
}

// PinState is a point-in-time snapshot of one binding.
type PinState struct {
	Index  int
	Offset int
	Name   string
	Value  string
}

// States snapshots every binding in registry order.
func (reg *Registry) States() []PinState {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	states := make([]PinState, 0, len(reg.bindings))
	for _, binding := range reg.bindings {
		states = append(states, PinState{
			Index:  binding.Index,
			Offset: binding.Offset,
			Name:   binding.Name,
			Value:  reg.readLocked(binding),
		})
	}

	return states
}

// Describe writes one line per binding, in registry order.
func (reg *Registry) Describe(w io.Writer) {
	for _, st := range reg.States() {
		fmt.Fprintf(w, "pin: %d | name: %s | state: %s\n", st.Offset, st.Name, st.Value)
	}
}

func (reg *Registry) readLocked(binding Binding) string {
	value, err := binding.output.Get()
	if err != nil {
		return "err"
	}

	switch value {
	case 0:
		return "0"
	case 1:
		return "1"
	}
	return "err"
}

func (reg *Registry) writeLocked(binding Binding, state int) {
	err := binding.output.Set(state)
	if err != nil {
		reg.logger.Debugf("error: %v", err)
		return
	}

	reg.logger.Debugf("pin %d set to %d", binding.Offset, state)
}
