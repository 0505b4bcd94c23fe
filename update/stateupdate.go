// Package update defines StateUpdate, the envelope every CRDT mutation is
// expressed as and the unit anti-entropy synchronization exchanges between
// replicas.
package update

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/Polqt/crdts/wrapper"
)

// StateUpdate is a single causally-ordered mutation: the uuid of the clock
// that timestamped it, the timestamp itself, and the opaque payload a CRDT's
// Update method knows how to interpret.
type StateUpdate struct {
	ClockUUID []byte
	TS        int
	Data      any
}

// New constructs a StateUpdate.
func New(clockUUID []byte, ts int, data any) StateUpdate {
	return StateUpdate{ClockUUID: clockUUID, TS: ts, Data: data}
}

// Pack serializes the envelope. ts and data are written through the generic
// wrapper codec, so either field may itself be a wrapper.Packable, a
// wrapper.Tuple, or a built-in scalar.
func (s StateUpdate) Pack() []byte {
	tsPart, err := wrapper.SerializePart(s.TS)
	if err != nil {
		panic(errors.Wrap(err, "update: StateUpdate.Pack serializing ts"))
	}
	dataPart, err := wrapper.SerializePart(s.Data)
	if err != nil {
		panic(errors.Wrap(err, "update: StateUpdate.Pack serializing data"))
	}

	out := make([]byte, 0, 12+len(s.ClockUUID)+len(tsPart)+len(dataPart))
	out = binary.BigEndian.AppendUint32(out, uint32(len(s.ClockUUID)))
	out = binary.BigEndian.AppendUint32(out, uint32(len(tsPart)))
	out = binary.BigEndian.AppendUint32(out, uint32(len(dataPart)))
	out = append(out, s.ClockUUID...)
	out = append(out, tsPart...)
	out = append(out, dataPart...)
	return out
}

// Unpack deserializes bytes produced by Pack, resolving any Packable class
// names against reg (pass nil to use wrapper.DefaultRegistry()).
func Unpack(data []byte, reg *wrapper.Registry) (StateUpdate, error) {
	if len(data) < 12 {
		return StateUpdate{}, errors.New("update: StateUpdate payload must be at least 12 bytes")
	}
	uuidLen := binary.BigEndian.Uint32(data[0:4])
	tsLen := binary.BigEndian.Uint32(data[4:8])
	dataLen := binary.BigEndian.Uint32(data[8:12])
	rest := data[12:]
	if uint32(len(rest)) < uuidLen+tsLen+dataLen {
		return StateUpdate{}, errors.New("update: StateUpdate payload truncated")
	}

	clockUUID := append([]byte{}, rest[:uuidLen]...)
	rest = rest[uuidLen:]
	tsPart := rest[:tsLen]
	rest = rest[tsLen:]
	dataPart := rest[:dataLen]

	tsAny, err := wrapper.DeserializePart(tsPart, reg)
	if err != nil {
		return StateUpdate{}, errors.Wrap(err, "update: unpacking ts")
	}
	ts, ok := tsAny.(int)
	if !ok {
		return StateUpdate{}, errors.New("update: StateUpdate.ts must deserialize to int")
	}

	dataAny, err := wrapper.DeserializePart(dataPart, reg)
	if err != nil {
		return StateUpdate{}, errors.Wrap(err, "update: unpacking data")
	}

	return StateUpdate{ClockUUID: clockUUID, TS: ts, Data: dataAny}, nil
}
