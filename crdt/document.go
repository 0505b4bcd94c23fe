package crdt

import (
	"encoding/binary"
	"encoding/hex"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Polqt/crdts/clock"
	"github.com/Polqt/crdts/update"
	"github.com/Polqt/crdts/wrapper"
)

// PartType tags which concrete CRDT type a Document part is, so a remote
// replica can reconstruct it from nothing but the tag plus its history.
type PartType byte

const (
	PartCounter     PartType = 'c'
	PartPNCounter   PartType = 'C'
	PartGSet        PartType = 's'
	PartORSet       PartType = 'S'
	PartCounterSet  PartType = 'k'
	PartLWWRegister PartType = 'l'
	PartLWWMap      PartType = 'L'
	PartMVRegister  PartType = 'm'
	PartMVMap       PartType = 'M'
	PartRGArray     PartType = 'R'
	PartFIArray     PartType = 'F'
	PartCausalTree  PartType = 'T'
)

// Identifier names one part of a Document: the uuid the part is filed under,
// the PartType it was created as, and (optionally) the Identifier of the
// part it logically follows, mirroring a version-chain link.
type Identifier struct {
	UUID     []byte
	TypeID   PartType
	Previous *Identifier
}

// Pack serializes the identifier, recursing into Previous when present.
func (id Identifier) Pack() []byte {
	var prevPart []byte
	if id.Previous != nil {
		prevPart = id.Previous.Pack()
	}
	out := make([]byte, 0, 9+len(id.UUID)+len(prevPart))
	out = binary.BigEndian.AppendUint32(out, uint32(len(id.UUID)))
	out = append(out, id.UUID...)
	out = append(out, byte(id.TypeID))
	hasPrev := byte(0)
	if id.Previous != nil {
		hasPrev = 1
	}
	out = append(out, hasPrev)
	out = binary.BigEndian.AppendUint32(out, uint32(len(prevPart)))
	out = append(out, prevPart...)
	return out
}

// UnpackIdentifier deserializes bytes produced by Identifier.Pack.
func UnpackIdentifier(data []byte) (Identifier, error) {
	if len(data) < 9 {
		return Identifier{}, errors.New("crdt: Identifier payload too short")
	}
	uuidLen := binary.BigEndian.Uint32(data[0:4])
	if uint32(len(data)) < 4+uuidLen+5 {
		return Identifier{}, errors.New("crdt: Identifier payload truncated")
	}
	id := append([]byte{}, data[4:4+uuidLen]...)
	rest := data[4+uuidLen:]
	typeID := PartType(rest[0])
	hasPrev := rest[1] == 1
	prevLen := binary.BigEndian.Uint32(rest[2:6])
	prevPart := rest[6:]
	if uint32(len(prevPart)) < prevLen {
		return Identifier{}, errors.New("crdt: Identifier.Previous payload truncated")
	}
	var previous *Identifier
	if hasPrev {
		prev, err := UnpackIdentifier(prevPart[:prevLen])
		if err != nil {
			return Identifier{}, errors.Wrap(err, "crdt: unpacking Identifier.Previous")
		}
		previous = &prev
	}
	return Identifier{UUID: id, TypeID: typeID, Previous: previous}, nil
}

func identifierKey(id Identifier) string { return hex.EncodeToString(id.UUID) }

// Part is the contract every concrete CRDT type satisfies, letting Document
// hold them uniformly without knowing which one it's looking at.
type Part interface {
	Clock() *clock.ScalarClock
	Update(su update.StateUpdate) error
}

func newPart(t PartType, c *clock.ScalarClock) (Part, error) {
	switch t {
	case PartCounter:
		return NewCounter(c), nil
	case PartPNCounter:
		return NewPNCounter(c), nil
	case PartGSet:
		return NewGSet(c), nil
	case PartORSet:
		return NewORSet(c), nil
	case PartCounterSet:
		return NewCounterSet(c), nil
	case PartLWWRegister:
		return NewLWWRegister(wrapper.Packable(wrapper.NoneWrapper{}), c), nil
	case PartLWWMap:
		return NewLWWMap(c), nil
	case PartMVRegister:
		return NewMVRegister(wrapper.Packable(wrapper.NoneWrapper{}), c), nil
	case PartMVMap:
		return NewMVMap(c), nil
	case PartRGArray:
		return NewRGArray(c), nil
	case PartFIArray:
		return NewFIArray(c), nil
	case PartCausalTree:
		return NewCausalTree(c), nil
	default:
		return nil, newErr(KindUnknownClass, "Document.newPart", "unrecognized PartType")
	}
}

// packHistory length-prefixes each packed StateUpdate so a run of them can be
// embedded inside a single wrapper.BytesWrapper payload.
func packHistory(updates []update.StateUpdate) []byte {
	var out []byte
	for _, su := range updates {
		chunk := su.Pack()
		out = binary.BigEndian.AppendUint32(out, uint32(len(chunk)))
		out = append(out, chunk...)
	}
	return out
}

func unpackHistory(data []byte, reg *wrapper.Registry) ([]update.StateUpdate, error) {
	var out []update.StateUpdate
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, errors.New("crdt: packed history truncated")
		}
		chunkLen := binary.BigEndian.Uint32(data[:4])
		data = data[4:]
		if uint32(len(data)) < chunkLen {
			return nil, errors.New("crdt: packed history truncated")
		}
		su, err := update.Unpack(data[:chunkLen], reg)
		if err != nil {
			return nil, err
		}
		out = append(out, su)
		data = data[chunkLen:]
	}
	return out, nil
}

func partHistory(p Part) []update.StateUpdate {
	switch v := p.(type) {
	case *Counter:
		return v.History()
	case *PNCounter:
		return v.History()
	case *GSet:
		return v.History(nil, nil)
	case *ORSet:
		return v.History(nil, nil)
	case *CounterSet:
		return v.History(nil, nil)
	case *LWWRegister:
		return v.History()
	case *LWWMap:
		return v.History()
	case *MVRegister:
		return v.History()
	case *MVMap:
		return v.History()
	case *RGArray:
		return v.History()
	case *FIArray:
		return v.History()
	case *CausalTree:
		return v.History()
	default:
		return nil
	}
}

// Document composes many CRDTs of possibly-different types into one
// replicated structure: elements is an ORSet of Identifiers naming which
// parts exist, and parts holds the actual CRDT for each live Identifier.
// The original Python source never implemented Document's pack/unpack (its
// body is a bare "..."); this type defines that wire format itself, as
// pack(clock) || pack(elements) || pack(parts), each part serialized as its
// Identifier's uuid, its PartType and its replayable History (an
// Identifier's Previous link is not written).
type Document struct {
	clock    *clock.ScalarClock
	elements *ORSet
	parts    map[string]Part
}

// NewDocument creates an empty Document with a fresh clock.
func NewDocument() *Document {
	c := clock.NewScalarClock()
	return &Document{clock: c, elements: NewORSet(c), parts: make(map[string]Part)}
}

// Clock returns the document's shared clock.
func (d *Document) Clock() *clock.ScalarClock { return d.clock }

// CreatePart adds a new part of the given type, identified by a fresh uuid,
// and returns its Identifier and the concrete CRDT so the caller can start
// writing to it.
func (d *Document) CreatePart(t PartType) (Identifier, Part, error) {
	id := Identifier{UUID: func() []byte { u := uuid.New(); return u[:] }(), TypeID: t}
	part, err := newPart(t, d.clock)
	if err != nil {
		return Identifier{}, nil, err
	}
	if _, err := d.elements.Observe(wrapper.Packable(identifierWrapper{id})); err != nil {
		return Identifier{}, nil, err
	}
	d.parts[identifierKey(id)] = part
	return id, part, nil
}

// Part looks up a live part by Identifier.
func (d *Document) Part(id Identifier) (Part, bool) {
	p, ok := d.parts[identifierKey(id)]
	return p, ok
}

// UpdatePart applies su to the part named by id, failing if id isn't a known
// element of the document.
func (d *Document) UpdatePart(id Identifier, su update.StateUpdate) error {
	part, ok := d.parts[identifierKey(id)]
	if !ok {
		return newErr(KindUsage, "Document.UpdatePart", "unknown part identifier")
	}
	return part.Update(su)
}

// Update applies a remote StateUpdate whose Data is an (op, Identifier)
// pair naming which part was created or removed at the element level.
func (d *Document) Update(su update.StateUpdate) error {
	pair, ok := su.Data.(wrapper.Tuple)
	if !ok || len(pair) != 2 {
		return newErr(KindTypeInvalid, "Document.Update", "state_update.data must be an (op, identifier) tuple")
	}
	op, ok := pair[0].(string)
	if !ok || (op != "o" && op != "r") {
		return newErr(KindValueInvalid, "Document.Update", "op must be \"o\" or \"r\"")
	}
	idw, ok := pair[1].(identifierWrapper)
	if !ok {
		return newErr(KindTypeInvalid, "Document.Update", "identifier must wrap a crdt.Identifier")
	}

	if err := d.elements.Update(update.New(d.clock.UUID(), su.TS, wrapper.Tuple{op, wrapper.Packable(idw)})); err != nil {
		return err
	}
	key := identifierKey(idw.id)
	if op == "o" {
		if _, exists := d.parts[key]; !exists {
			part, err := newPart(idw.id.TypeID, d.clock)
			if err != nil {
				return err
			}
			d.parts[key] = part
		}
	} else {
		delete(d.parts, key)
	}
	return nil
}

// History returns one StateUpdate per live part, each carrying that part's
// own packed history as a BytesWrapper payload. This is a snapshot view for
// Merkle hashing and transfer, not something Update itself consumes — Update
// takes the narrower (op, identifier) element-membership events; applying a
// History entry to a fresh replica means unpacking its blob with
// unpackHistory and replaying each entry against the part Update created.
func (d *Document) History() []update.StateUpdate {
	members := d.elements.Read()
	out := make([]update.StateUpdate, 0, len(members))
	for _, m := range members {
		idw, ok := m.(identifierWrapper)
		if !ok {
			continue
		}
		part, ok := d.parts[identifierKey(idw.id)]
		if !ok {
			continue
		}
		blob := wrapper.BytesWrapper{Value: packHistory(partHistory(part))}
		out = append(out, update.New(d.clock.UUID(), d.clock.Read(), wrapper.Tuple{"o", wrapper.Packable(idw), wrapper.Packable(blob)}))
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].Data.(wrapper.Tuple)[1].(identifierWrapper).id.UUID) <
			string(out[j].Data.(wrapper.Tuple)[1].(identifierWrapper).id.UUID)
	})
	return out
}

// Pack serializes the document as pack(clock) || pack(elements) || pack(parts).
func (d *Document) Pack() []byte {
	clockPart := d.clock.Pack()

	var elementsPart []byte
	for _, su := range d.elements.History(nil, nil) {
		chunk := su.Pack()
		elementsPart = binary.BigEndian.AppendUint32(elementsPart, uint32(len(chunk)))
		elementsPart = append(elementsPart, chunk...)
	}

	var partsPart []byte
	for key, part := range d.parts {
		idBytes, err := hex.DecodeString(key)
		if err != nil {
			continue
		}
		typeByte := partTypeOf(part)
		historyChunks := partHistory(part)
		var historyBuf []byte
		for _, su := range historyChunks {
			chunk := su.Pack()
			historyBuf = binary.BigEndian.AppendUint32(historyBuf, uint32(len(chunk)))
			historyBuf = append(historyBuf, chunk...)
		}
		entry := make([]byte, 0, 9+len(idBytes)+len(historyBuf))
		entry = binary.BigEndian.AppendUint32(entry, uint32(len(idBytes)))
		entry = append(entry, idBytes...)
		entry = append(entry, byte(typeByte))
		entry = binary.BigEndian.AppendUint32(entry, uint32(len(historyChunks)))
		entry = append(entry, historyBuf...)
		partsPart = binary.BigEndian.AppendUint32(partsPart, uint32(len(entry)))
		partsPart = append(partsPart, entry...)
	}

	out := make([]byte, 0, 12+len(clockPart)+len(elementsPart)+len(partsPart))
	out = binary.BigEndian.AppendUint32(out, uint32(len(clockPart)))
	out = binary.BigEndian.AppendUint32(out, uint32(len(elementsPart)))
	out = binary.BigEndian.AppendUint32(out, uint32(len(partsPart)))
	out = append(out, clockPart...)
	out = append(out, elementsPart...)
	out = append(out, partsPart...)
	return out
}

func partTypeOf(p Part) PartType {
	switch p.(type) {
	case *Counter:
		return PartCounter
	case *PNCounter:
		return PartPNCounter
	case *GSet:
		return PartGSet
	case *ORSet:
		return PartORSet
	case *CounterSet:
		return PartCounterSet
	case *LWWRegister:
		return PartLWWRegister
	case *LWWMap:
		return PartLWWMap
	case *MVRegister:
		return PartMVRegister
	case *MVMap:
		return PartMVMap
	case *RGArray:
		return PartRGArray
	case *FIArray:
		return PartFIArray
	case *CausalTree:
		return PartCausalTree
	default:
		return 0
	}
}

// UnpackDocument deserializes bytes produced by Pack, reconstructing every
// part's shell from its PartType and replaying its packed history through
// Update.
func UnpackDocument(data []byte, reg *wrapper.Registry) (*Document, error) {
	if len(data) < 12 {
		return nil, errors.New("crdt: Document payload too short")
	}
	clockLen := binary.BigEndian.Uint32(data[0:4])
	elementsLen := binary.BigEndian.Uint32(data[4:8])
	partsLen := binary.BigEndian.Uint32(data[8:12])
	rest := data[12:]
	if uint32(len(rest)) < clockLen+elementsLen+partsLen {
		return nil, errors.New("crdt: Document payload truncated")
	}
	clockPart := rest[:clockLen]
	rest = rest[clockLen:]
	elementsPart := rest[:elementsLen]
	rest = rest[elementsLen:]
	partsPart := rest[:partsLen]

	c, err := clock.UnpackScalarClock(clockPart)
	if err != nil {
		return nil, errors.Wrap(err, "crdt: unpacking Document.clock")
	}

	doc := &Document{clock: c, elements: NewORSet(c), parts: make(map[string]Part)}

	for len(elementsPart) > 0 {
		if len(elementsPart) < 4 {
			return nil, errors.New("crdt: Document.elements payload truncated")
		}
		chunkLen := binary.BigEndian.Uint32(elementsPart[:4])
		elementsPart = elementsPart[4:]
		if uint32(len(elementsPart)) < chunkLen {
			return nil, errors.New("crdt: Document.elements payload truncated")
		}
		su, err := update.Unpack(elementsPart[:chunkLen], reg)
		if err != nil {
			return nil, errors.Wrap(err, "crdt: unpacking Document.elements entry")
		}
		elementsPart = elementsPart[chunkLen:]
		if err := doc.elements.Update(su); err != nil {
			return nil, err
		}
	}

	for len(partsPart) > 0 {
		if len(partsPart) < 4 {
			return nil, errors.New("crdt: Document.parts payload truncated")
		}
		entryLen := binary.BigEndian.Uint32(partsPart[:4])
		partsPart = partsPart[4:]
		if uint32(len(partsPart)) < entryLen {
			return nil, errors.New("crdt: Document.parts payload truncated")
		}
		entry := partsPart[:entryLen]
		partsPart = partsPart[entryLen:]

		if len(entry) < 9 {
			return nil, errors.New("crdt: Document.parts entry too short")
		}
		idLen := binary.BigEndian.Uint32(entry[0:4])
		if uint32(len(entry)) < 4+idLen+5 {
			return nil, errors.New("crdt: Document.parts entry truncated")
		}
		idBytes := entry[4 : 4+idLen]
		rest := entry[4+idLen:]
		typeID := PartType(rest[0])
		historyCount := binary.BigEndian.Uint32(rest[1:5])
		historyBuf := rest[5:]

		part, err := newPart(typeID, c)
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < historyCount; i++ {
			if len(historyBuf) < 4 {
				return nil, errors.New("crdt: Document.parts history truncated")
			}
			chunkLen := binary.BigEndian.Uint32(historyBuf[:4])
			historyBuf = historyBuf[4:]
			if uint32(len(historyBuf)) < chunkLen {
				return nil, errors.New("crdt: Document.parts history truncated")
			}
			su, err := update.Unpack(historyBuf[:chunkLen], reg)
			if err != nil {
				return nil, errors.Wrap(err, "crdt: unpacking Document.parts history entry")
			}
			historyBuf = historyBuf[chunkLen:]
			if err := part.Update(su); err != nil {
				return nil, err
			}
		}
		doc.parts[hex.EncodeToString(idBytes)] = part
	}

	return doc, nil
}

// identifierWrapper adapts Identifier to wrapper.Packable so it can sit
// inside elements, the document's ORSet of live part names.
type identifierWrapper struct{ id Identifier }

func (w identifierWrapper) Pack() []byte { return w.id.Pack() }

func UnpackIdentifierWrapper(data []byte) (identifierWrapper, error) {
	id, err := UnpackIdentifier(data)
	if err != nil {
		return identifierWrapper{}, err
	}
	return identifierWrapper{id: id}, nil
}

func init() {
	wrapper.RegisterGlobal("identifierWrapper", func(data []byte) (wrapper.Packable, error) {
		return UnpackIdentifierWrapper(data)
	})
}
