// Package wrapper implements the self-describing value codec and the
// tagged-sum wrapped value types used throughout the crdt package: every
// value that needs to travel inside a StateUpdate, sit in a GSet/ORSet, or
// key a LWWMap/MVMap must be wrapped in one of the types defined here so it
// carries enough information to compare, hash, and round-trip through bytes.
package wrapper

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// Packable is any value that can serialize itself and be resolved back out
// of bytes through the type registry by its registered class name.
type Packable interface {
	Pack() []byte
}

// Tuple and Set give the generic codec below somewhere to put Python's
// tuple/set container kinds, which Go has no built-in equivalent for. Order
// is preserved for Tuple; Set carries no uniqueness guarantee of its own —
// callers that need set semantics enforce it before handing values in.
type Tuple []any
type Set []any

// tag bytes identifying each wire shape a serialized part can take.
// tagByteArr is accepted on decode as an alias of tagBytes (both yield
// []byte); SerializePart never emits it.
const (
	tagPackable byte = 'p'
	tagList     byte = 'l'
	tagSet      byte = 'e'
	tagTuple    byte = 't'
	tagBytes    byte = 'b'
	tagByteArr  byte = 'a'
	tagString   byte = 's'
	tagInt      byte = 'i'
	tagFloat    byte = 'f'
)

// Registry resolves a registered class name back to an Unpack function. It
// plays the role the original implementation filled with a dict merging
// globals() and a caller-supplied inject map: a packed part only carries its
// class name as a string, and the registry is what turns that name back into
// living Go code.
type Registry struct {
	unpackers map[string]func([]byte) (Packable, error)
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{unpackers: make(map[string]func([]byte) (Packable, error))}
}

// Register associates name with an unpack function. Re-registering a name
// overwrites the previous entry, matching inject's override-globals behavior.
func (r *Registry) Register(name string, fn func([]byte) (Packable, error)) {
	r.unpackers[name] = fn
}

// WithInjected returns a new Registry containing r's entries overlaid with
// inject's, so that inject wins on name collisions.
func (r *Registry) WithInjected(inject *Registry) *Registry {
	merged := NewRegistry()
	for k, v := range r.unpackers {
		merged.unpackers[k] = v
	}
	if inject != nil {
		for k, v := range inject.unpackers {
			merged.unpackers[k] = v
		}
	}
	return merged
}

// Unpack resolves name and invokes its unpacker on data.
func (r *Registry) Unpack(name string, data []byte) (Packable, error) {
	fn, ok := r.unpackers[name]
	if !ok {
		return nil, errors.Errorf("wrapper: unknown class %q; not found in registry", name)
	}
	return fn(data)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.unpackers[name]
	return ok
}

var defaultRegistry = NewRegistry()

// RegisterGlobal adds name to the package-wide default registry. Packages
// that define a Packable type (wrapper, clock, ...) call this from an init()
// so that Unpack calls using DefaultRegistry can resolve it without an
// explicit import cycle.
func RegisterGlobal(name string, fn func([]byte) (Packable, error)) {
	defaultRegistry.Register(name, fn)
}

// DefaultRegistry returns the shared registry populated by every package's
// init(). Most callers should pass this (or a Registry built with
// WithInjected on top of it) wherever a Packable class needs resolving.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// SerializePart packs data using the tag+length+payload scheme: a Packable
// is prefixed with its hex-encoded class name, containers are packed
// recursively, and built-in scalars are packed directly. This mirrors the
// serialize_part/deserialize_part pair used to pack StateUpdate fields and
// other heterogeneous values that have to travel as bytes.
func SerializePart(data any) ([]byte, error) {
	switch v := data.(type) {
	case Packable:
		class := fmt.Sprintf("%x", []byte(className(v)))
		packed := append([]byte(class+"_"), v.Pack()...)
		return frame(tagPackable, packed), nil
	case Tuple:
		return serializeContainer(tagTuple, []any(v))
	case Set:
		return serializeContainer(tagSet, []any(v))
	case []any:
		return serializeContainer(tagList, v)
	case []byte:
		return frame(tagBytes, v), nil
	case string:
		return frame(tagString, []byte(v)), nil
	case int:
		return frameInt(int32(v)), nil
	case int32:
		return frameInt(v), nil
	case int64:
		return frameInt(int32(v)), nil
	case float64:
		return frameFloat(v), nil
	default:
		return nil, errors.Errorf("wrapper: cannot serialize value of type %T", data)
	}
}

func serializeContainer(tag byte, items []any) ([]byte, error) {
	buf := make([]byte, 0, 32)
	for _, item := range items {
		part, err := SerializePart(item)
		if err != nil {
			return nil, err
		}
		buf = append(buf, part...)
	}
	return frame(tag, buf), nil
}

func frame(tag byte, payload []byte) []byte {
	out := make([]byte, 0, 5+len(payload))
	out = append(out, tag)
	out = binary.BigEndian.AppendUint32(out, uint32(len(payload)))
	out = append(out, payload...)
	return out
}

func frameInt(v int32) []byte {
	out := make([]byte, 0, 9)
	out = append(out, tagInt)
	out = binary.BigEndian.AppendUint32(out, 4)
	out = binary.BigEndian.AppendUint32(out, uint32(v))
	return out
}

func frameFloat(v float64) []byte {
	out := make([]byte, 0, 13)
	out = append(out, tagFloat)
	out = binary.BigEndian.AppendUint32(out, 8)
	bits := floatBits(v)
	out = binary.BigEndian.AppendUint64(out, bits)
	return out
}

// DeserializePart is the inverse of SerializePart, using reg to resolve any
// Packable class names it encounters.
func DeserializePart(data []byte, reg *Registry) (any, error) {
	if reg == nil {
		reg = DefaultRegistry()
	}
	if len(data) < 5 {
		return nil, errors.New("wrapper: part must be at least 5 bytes")
	}
	tag := data[0]
	length := binary.BigEndian.Uint32(data[1:5])
	if uint32(len(data)-5) < length {
		return nil, errors.New("wrapper: truncated part")
	}
	payload := data[5 : 5+length]

	switch tag {
	case tagPackable:
		return unpackPackable(payload, reg)
	case tagList, tagSet, tagTuple:
		items, err := deserializeContainer(payload, reg)
		if err != nil {
			return nil, err
		}
		switch tag {
		case tagSet:
			return Set(items), nil
		case tagTuple:
			return Tuple(items), nil
		default:
			return items, nil
		}
	case tagBytes:
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	case tagByteArr:
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	case tagString:
		return string(payload), nil
	case tagInt:
		if len(payload) != 4 {
			return nil, errors.New("wrapper: int part must be 4 bytes")
		}
		return int(int32(binary.BigEndian.Uint32(payload))), nil
	case tagFloat:
		if len(payload) != 8 {
			return nil, errors.New("wrapper: float part must be 8 bytes")
		}
		return bitsToFloat(binary.BigEndian.Uint64(payload)), nil
	default:
		return nil, errors.Errorf("wrapper: unknown tag %q", tag)
	}
}

func unpackPackable(payload []byte, reg *Registry) (Packable, error) {
	idx := -1
	for i, b := range payload {
		if b == '_' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, errors.New("wrapper: malformed packable part, missing class separator")
	}
	classHex := string(payload[:idx])
	class, err := unhex(classHex)
	if err != nil {
		return nil, errors.Wrap(err, "wrapper: decoding class name")
	}
	return reg.Unpack(string(class), payload[idx+1:])
}

func deserializeContainer(data []byte, reg *Registry) ([]any, error) {
	var items []any
	for len(data) > 0 {
		if len(data) < 5 {
			return nil, errors.New("wrapper: truncated container element header")
		}
		length := binary.BigEndian.Uint32(data[1:5])
		end := 5 + int(length)
		if end > len(data) {
			return nil, errors.New("wrapper: truncated container element body")
		}
		item, err := DeserializePart(data[:end], reg)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		data = data[end:]
	}
	return items, nil
}
