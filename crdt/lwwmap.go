package crdt

import (
	"github.com/Polqt/crdts/clock"
	"github.com/Polqt/crdts/update"
	"github.com/Polqt/crdts/wrapper"
)

// LWWMap is a map CRDT built from an ORSet of names and one LWWRegister per
// live name, all sharing a single clock: the ORSet resolves whether a key
// exists at all, and the register resolves what value wins among
// concurrent writers once it does.
type LWWMap struct {
	names     *ORSet
	registers map[string]*LWWRegister
	clock     *clock.ScalarClock
}

// NewLWWMap creates an empty LWWMap sharing c (or a fresh clock if c is nil).
func NewLWWMap(c *clock.ScalarClock) *LWWMap {
	if c == nil {
		c = clock.NewScalarClock()
	}
	return &LWWMap{names: NewORSet(c), registers: make(map[string]*LWWRegister), clock: c}
}

// Clock returns the map's shared clock.
func (m *LWWMap) Clock() *clock.ScalarClock { return m.clock }

// Read returns every live name mapped to its register's current value.
func (m *LWWMap) Read() map[string]wrapper.Packable {
	out := make(map[string]wrapper.Packable)
	for _, name := range m.names.Read() {
		if reg, ok := m.registers[memberKey(name)]; ok {
			out[memberKey(name)] = reg.Read()
		}
	}
	return out
}

func nameStillObserved(names []wrapper.Packable, key string) bool {
	for _, n := range names {
		if memberKey(n) == key {
			return true
		}
	}
	return false
}

// Update applies a remote StateUpdate whose Data is an (op, name, writer,
// value) quadruple.
func (m *LWWMap) Update(su update.StateUpdate) error {
	if string(su.ClockUUID) != string(m.clock.UUID()) {
		return newErr(KindUsage, "LWWMap.Update", "state_update.clock_uuid must equal clock.uuid")
	}
	quad, ok := su.Data.(wrapper.Tuple)
	if !ok || len(quad) != 4 {
		return newErr(KindTypeInvalid, "LWWMap.Update", "state_update.data must be a 4-tuple")
	}
	op, ok := quad[0].(string)
	if !ok || (op != "o" && op != "r") {
		return newErr(KindValueInvalid, "LWWMap.Update", "op must be \"o\" or \"r\"")
	}
	name, ok := quad[1].(wrapper.Packable)
	if !ok {
		return newErr(KindTypeInvalid, "LWWMap.Update", "name must be Packable")
	}
	writer, ok := quad[2].(int)
	if !ok {
		return newErr(KindTypeInvalid, "LWWMap.Update", "writer must be int")
	}
	value, ok := quad[3].(wrapper.Packable)
	if !ok {
		return newErr(KindTypeInvalid, "LWWMap.Update", "value must be Packable")
	}

	key := memberKey(name)
	if err := m.names.Update(update.New(m.clock.UUID(), su.TS, wrapper.Tuple{op, name})); err != nil {
		return err
	}

	if op == "o" {
		if _, exists := m.registers[key]; !exists {
			m.registers[key] = NewLWWRegister(name, m.clock)
		}
	} else {
		if !nameStillObserved(m.names.Read(), key) {
			delete(m.registers, key)
		}
	}

	if reg, ok := m.registers[key]; ok {
		if err := reg.Update(update.New(m.clock.UUID(), su.TS, wrapper.Tuple{writer, value})); err != nil {
			return err
		}
	}
	return nil
}

// Checksums aggregates every register's checksum totals with the
// underlying name-set's.
func (m *LWWMap) Checksums(fromTS, untilTS *int) (totalLastUpdate, totalLastWriter int, totalCRC uint32, names struct {
	Until, Count int
	CRC          uint32
}) {
	for _, reg := range m.registers {
		lu, lw, crc := reg.Checksums()
		totalLastUpdate += lu
		totalLastWriter += lw
		totalCRC += crc
	}
	names.Until, names.Count, names.CRC = m.names.counterIDsChecksums(fromTS, untilTS)
	return
}

// counterIDsChecksums is a small indirection so LWWMap.Checksums reads
// naturally; ORSet itself has no GSet-shaped checksum, so this reports the
// observed half of the name-set's checksum tuple as (until, count, crc);
// the removed count and crc are not included.
func (s *ORSet) counterIDsChecksums(fromTS, untilTS *int) (int, int, uint32) {
	observedCount, _, observedCRC, _ := s.Checksums(fromTS, untilTS)
	until := s.clock.Read()
	if untilTS != nil {
		until = *untilTS
	}
	return until, observedCount, observedCRC
}

// History returns one StateUpdate per name the underlying ORSet reports,
// reconstructed with that name's register's current (writer, value) pair
// when the register still exists, or a removed-with-no-survivor placeholder
// otherwise.
func (m *LWWMap) History() []update.StateUpdate {
	orsetHistory := m.names.History(nil, nil)
	out := make([]update.StateUpdate, 0, len(orsetHistory))
	for _, osu := range orsetHistory {
		pair, ok := osu.Data.(wrapper.Tuple)
		if !ok || len(pair) != 2 {
			continue
		}
		op, _ := pair[0].(string)
		name, _ := pair[1].(wrapper.Packable)
		key := memberKey(name)

		if reg, ok := m.registers[key]; ok {
			out = append(out, update.New(m.clock.UUID(), osu.TS, wrapper.Tuple{op, name, reg.lastWriter, reg.value}))
		} else {
			out = append(out, update.New(m.clock.UUID(), osu.TS, wrapper.Tuple{op, name, 0, wrapper.Packable(wrapper.NoneWrapper{})}))
		}
	}
	return out
}

// Set creates, applies, and returns a StateUpdate that writes value to name
// as writer.
func (m *LWWMap) Set(name wrapper.Packable, value wrapper.Packable, writer int) (update.StateUpdate, error) {
	su := update.New(m.clock.UUID(), m.clock.Read(), wrapper.Tuple{"o", name, writer, value})
	if err := m.Update(su); err != nil {
		return update.StateUpdate{}, err
	}
	return su, nil
}

// Unset creates, applies, and returns a StateUpdate that removes name.
func (m *LWWMap) Unset(name wrapper.Packable, writer int) (update.StateUpdate, error) {
	su := update.New(m.clock.UUID(), m.clock.Read(), wrapper.Tuple{"r", name, writer, wrapper.Packable(wrapper.NoneWrapper{})})
	if err := m.Update(su); err != nil {
		return update.StateUpdate{}, err
	}
	return su, nil
}
