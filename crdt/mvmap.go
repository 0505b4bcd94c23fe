package crdt

import (
	"github.com/Polqt/crdts/clock"
	"github.com/Polqt/crdts/update"
	"github.com/Polqt/crdts/wrapper"
)

// MVMap is the Multi-Value analogue of LWWMap: an ORSet of names paired with
// one MVRegister per live name, so concurrent writers to the same key are
// all preserved rather than resolved to a single winner.
type MVMap struct {
	listeners
	names     *ORSet
	registers map[string]*MVRegister
	clock     *clock.ScalarClock
}

// NewMVMap creates an empty MVMap sharing c (or a fresh clock if c is nil).
func NewMVMap(c *clock.ScalarClock) *MVMap {
	if c == nil {
		c = clock.NewScalarClock()
	}
	return &MVMap{names: NewORSet(c), registers: make(map[string]*MVRegister), clock: c}
}

// Clock returns the map's shared clock.
func (m *MVMap) Clock() *clock.ScalarClock { return m.clock }

// Read returns every live name mapped to its register's current values.
func (m *MVMap) Read() map[string][]wrapper.Packable {
	out := make(map[string][]wrapper.Packable)
	for _, name := range m.names.Read() {
		if reg, ok := m.registers[memberKey(name)]; ok {
			out[memberKey(name)] = reg.Read()
		}
	}
	return out
}

// Update applies a remote StateUpdate whose Data is an (op, name, value)
// triple, invoking every registered Listener with the raw update before any
// mutation happens.
func (m *MVMap) Update(su update.StateUpdate) error {
	m.invoke(su)

	if string(su.ClockUUID) != string(m.clock.UUID()) {
		return newErr(KindUsage, "MVMap.Update", "state_update.clock_uuid must equal clock.uuid")
	}
	triple, ok := su.Data.(wrapper.Tuple)
	if !ok || len(triple) != 3 {
		return newErr(KindTypeInvalid, "MVMap.Update", "state_update.data must be a 3-tuple")
	}
	op, ok := triple[0].(string)
	if !ok || (op != "o" && op != "r") {
		return newErr(KindValueInvalid, "MVMap.Update", "op must be \"o\" or \"r\"")
	}
	name, ok := triple[1].(wrapper.Packable)
	if !ok {
		return newErr(KindTypeInvalid, "MVMap.Update", "name must be Packable")
	}
	value, ok := triple[2].(wrapper.Packable)
	if !ok {
		return newErr(KindTypeInvalid, "MVMap.Update", "value must be Packable")
	}

	key := memberKey(name)
	if err := m.names.Update(update.New(m.clock.UUID(), su.TS, wrapper.Tuple{op, name})); err != nil {
		return err
	}

	if op == "o" {
		if _, exists := m.registers[key]; !exists {
			m.registers[key] = NewMVRegister(name, m.clock)
		}
	} else {
		if !nameStillObserved(m.names.Read(), key) {
			delete(m.registers, key)
		}
	}

	if reg, ok := m.registers[key]; ok {
		if err := reg.Update(update.New(m.clock.UUID(), su.TS, value)); err != nil {
			return err
		}
	}
	return nil
}

// History returns one StateUpdate per (name, value) pair currently held
// across every live register.
func (m *MVMap) History() []update.StateUpdate {
	var out []update.StateUpdate
	for _, name := range m.names.Read() {
		reg, ok := m.registers[memberKey(name)]
		if !ok {
			continue
		}
		for _, v := range reg.Read() {
			out = append(out, update.New(m.clock.UUID(), reg.lastUpdate, wrapper.Tuple{"o", name, v}))
		}
	}
	return out
}

// Set creates, applies, and returns a StateUpdate that writes value to name.
func (m *MVMap) Set(name wrapper.Packable, value wrapper.Packable) (update.StateUpdate, error) {
	su := update.New(m.clock.UUID(), m.clock.Read(), wrapper.Tuple{"o", name, value})
	if err := m.Update(su); err != nil {
		return update.StateUpdate{}, err
	}
	return su, nil
}

// Unset creates, applies, and returns a StateUpdate that removes name.
func (m *MVMap) Unset(name wrapper.Packable) (update.StateUpdate, error) {
	su := update.New(m.clock.UUID(), m.clock.Read(), wrapper.Tuple{"r", name, wrapper.Packable(wrapper.NoneWrapper{})})
	if err := m.Update(su); err != nil {
		return update.StateUpdate{}, err
	}
	return su, nil
}
