package wrapper

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

func init() {
	RegisterGlobal("StrWrapper", func(data []byte) (Packable, error) {
		return UnpackStrWrapper(data)
	})
	RegisterGlobal("BytesWrapper", func(data []byte) (Packable, error) {
		return UnpackBytesWrapper(data)
	})
	RegisterGlobal("IntWrapper", func(data []byte) (Packable, error) {
		return UnpackIntWrapper(data)
	})
	RegisterGlobal("DecimalWrapper", func(data []byte) (Packable, error) {
		return UnpackDecimalWrapper(data)
	})
	RegisterGlobal("NoneWrapper", func(data []byte) (Packable, error) {
		return UnpackNoneWrapper(data)
	})
	RegisterGlobal("RGAItemWrapper", func(data []byte) (Packable, error) {
		return UnpackRGAItemWrapper(data, DefaultRegistry())
	})
	RegisterGlobal("CTDataWrapper", func(data []byte) (Packable, error) {
		return UnpackCTDataWrapper(data, DefaultRegistry())
	})
}

// StrWrapper wraps a string so it can sit inside a GSet/ORSet or key a map.
type StrWrapper struct {
	Value string
}

func (w StrWrapper) Pack() []byte { return []byte(w.Value) }

func UnpackStrWrapper(data []byte) (StrWrapper, error) {
	return StrWrapper{Value: string(data)}, nil
}

// BytesWrapper wraps a raw byte string.
type BytesWrapper struct {
	Value []byte
}

func (w BytesWrapper) Pack() []byte {
	out := make([]byte, len(w.Value))
	copy(out, w.Value)
	return out
}

func UnpackBytesWrapper(data []byte) (BytesWrapper, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return BytesWrapper{Value: out}, nil
}

// IntWrapper wraps an int64, used wherever a bare timestamp or counter must
// be boxed up as a DataWrapperProtocol-equivalent (e.g. ScalarClock.WrapTS).
type IntWrapper struct {
	Value int64
}

func (w IntWrapper) Pack() []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, uint64(w.Value))
	return out
}

func UnpackIntWrapper(data []byte) (IntWrapper, error) {
	if len(data) != 8 {
		return IntWrapper{}, errors.New("wrapper: IntWrapper payload must be 8 bytes")
	}
	return IntWrapper{Value: int64(binary.BigEndian.Uint64(data))}, nil
}

// DecimalWrapper wraps an arbitrary-precision decimal, used for fractional
// indices in FIArray.
type DecimalWrapper struct {
	Value decimal.Decimal
}

func (w DecimalWrapper) Pack() []byte { return []byte(w.Value.String()) }

func UnpackDecimalWrapper(data []byte) (DecimalWrapper, error) {
	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return DecimalWrapper{}, errors.Wrap(err, "wrapper: unpacking DecimalWrapper")
	}
	return DecimalWrapper{Value: d}, nil
}

// Less reports whether w sorts before other, used for position comparisons.
func (w DecimalWrapper) Less(other DecimalWrapper) bool {
	return w.Value.LessThan(other.Value)
}

// NoneWrapper wraps the absence of a value (a tombstone placeholder).
type NoneWrapper struct{}

func (w NoneWrapper) Pack() []byte { return []byte{} }

func UnpackNoneWrapper(data []byte) (NoneWrapper, error) {
	return NoneWrapper{}, nil
}

// RGAItemWrapper pairs a wrapped value with the (timestamp, writer) that
// placed it, which is what the Replicated Growable Array orders entries by.
type RGAItemWrapper struct {
	Item   Packable
	TS     int
	Writer int
}

func (w RGAItemWrapper) Pack() []byte {
	itemPart, err := SerializePart(w.Item)
	if err != nil {
		// Item is always constructed from a value this package already
		// knows how to serialize; a failure here means a caller built an
		// RGAItemWrapper around something that isn't Packable.
		panic(errors.Wrap(err, "wrapper: RGAItemWrapper.Pack"))
	}
	out := make([]byte, 0, len(itemPart)+8)
	out = binary.BigEndian.AppendUint32(out, uint32(len(itemPart)))
	out = append(out, itemPart...)
	out = binary.BigEndian.AppendUint32(out, uint32(w.TS))
	out = binary.BigEndian.AppendUint32(out, uint32(w.Writer))
	return out
}

func UnpackRGAItemWrapper(data []byte, reg *Registry) (RGAItemWrapper, error) {
	if len(data) < 12 {
		return RGAItemWrapper{}, errors.New("wrapper: RGAItemWrapper payload too short")
	}
	itemLen := binary.BigEndian.Uint32(data[0:4])
	if uint32(len(data)) < 4+itemLen+8 {
		return RGAItemWrapper{}, errors.New("wrapper: RGAItemWrapper payload truncated")
	}
	itemPart := data[4 : 4+itemLen]
	rest := data[4+itemLen:]
	ts := int(int32(binary.BigEndian.Uint32(rest[0:4])))
	writer := int(int32(binary.BigEndian.Uint32(rest[4:8])))

	item, err := DeserializePart(itemPart, reg)
	if err != nil {
		return RGAItemWrapper{}, errors.Wrap(err, "wrapper: unpacking RGAItemWrapper.Item")
	}
	packableItem, ok := item.(Packable)
	if !ok {
		return RGAItemWrapper{}, errors.New("wrapper: RGAItemWrapper.Item must be Packable")
	}
	return RGAItemWrapper{Item: packableItem, TS: ts, Writer: writer}, nil
}

// Equal reports structural equality, used by ORSet membership checks.
func (w RGAItemWrapper) Equal(other RGAItemWrapper) bool {
	return w.TS == other.TS && w.Writer == other.Writer &&
		bytes.Equal(w.Item.Pack(), other.Item.Pack()) &&
		className(w.Item) == className(other.Item)
}

// SortKey returns the (ts, writer, class name, packed value) tuple the
// Replicated Growable Array orders visible items by.
func (w RGAItemWrapper) SortKey() (int, int, string, string) {
	return w.TS, w.Writer, className(w.Item), string(w.Item.Pack())
}

// CTDataWrapper is one datum in a Causal Tree: a value plus the uuid
// identifying its position and the parent uuid it was inserted after.
// Parent/children pointers are maintained only in memory while computing the
// tree's depth-first traversal order; they are never packed.
type CTDataWrapper struct {
	Value      Packable
	UUID       []byte
	ParentUUID []byte
	Visible    bool

	parent   *CTDataWrapper
	children []*CTDataWrapper
}

func NewCTDataWrapper(value Packable, uuid, parentUUID []byte) *CTDataWrapper {
	return &CTDataWrapper{Value: value, UUID: uuid, ParentUUID: parentUUID, Visible: true}
}

func (w *CTDataWrapper) Pack() []byte {
	valuePart, err := SerializePart(w.Value)
	if err != nil {
		panic(errors.Wrap(err, "wrapper: CTDataWrapper.Pack"))
	}
	visible := byte(0)
	if w.Visible {
		visible = 1
	}
	out := make([]byte, 0, len(valuePart)+len(w.UUID)+len(w.ParentUUID)+13)
	out = binary.BigEndian.AppendUint32(out, uint32(len(valuePart)))
	out = binary.BigEndian.AppendUint32(out, uint32(len(w.UUID)))
	out = binary.BigEndian.AppendUint32(out, uint32(len(w.ParentUUID)))
	out = append(out, visible)
	out = append(out, valuePart...)
	out = append(out, w.UUID...)
	out = append(out, w.ParentUUID...)
	return out
}

func UnpackCTDataWrapper(data []byte, reg *Registry) (*CTDataWrapper, error) {
	if len(data) < 13 {
		return nil, errors.New("wrapper: CTDataWrapper payload too short")
	}
	valueLen := binary.BigEndian.Uint32(data[0:4])
	uuidLen := binary.BigEndian.Uint32(data[4:8])
	parentLen := binary.BigEndian.Uint32(data[8:12])
	visible := data[12] == 1
	rest := data[13:]
	if uint32(len(rest)) < valueLen+uuidLen+parentLen {
		return nil, errors.New("wrapper: CTDataWrapper payload truncated")
	}
	valuePart := rest[:valueLen]
	rest = rest[valueLen:]
	uuid := append([]byte{}, rest[:uuidLen]...)
	rest = rest[uuidLen:]
	parentUUID := append([]byte{}, rest[:parentLen]...)

	value, err := DeserializePart(valuePart, reg)
	if err != nil {
		return nil, errors.Wrap(err, "wrapper: unpacking CTDataWrapper.Value")
	}
	packableValue, ok := value.(Packable)
	if !ok {
		return nil, errors.New("wrapper: CTDataWrapper.Value must be Packable")
	}
	return &CTDataWrapper{Value: packableValue, UUID: uuid, ParentUUID: parentUUID, Visible: visible}, nil
}

// AddChild records child as a child of w.
func (w *CTDataWrapper) AddChild(child *CTDataWrapper) { w.children = append(w.children, child) }

// Children returns w's recorded children.
func (w *CTDataWrapper) Children() []*CTDataWrapper { return w.children }

// SetParent records parent as w's parent.
func (w *CTDataWrapper) SetParent(parent *CTDataWrapper) { w.parent = parent }

// Parent returns w's recorded parent, or nil if none was set.
func (w *CTDataWrapper) Parent() *CTDataWrapper { return w.parent }
