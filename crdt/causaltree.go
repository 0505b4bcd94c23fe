package crdt

import (
	"bytes"
	"sort"

	"github.com/google/uuid"

	"github.com/Polqt/crdts/clock"
	"github.com/Polqt/crdts/update"
	"github.com/Polqt/crdts/wrapper"
)

// CausalTree implements a Causal Tree CRDT: every datum records the uuid of
// the parent it was inserted after, and the eventually-consistent order is
// the depth-first, pre-order walk of the resulting tree (siblings ordered
// by uuid to break ties deterministically).
type CausalTree struct {
	positions *LWWMap
	clock     *clock.ScalarClock
	cache     []*wrapper.CTDataWrapper
	excluded  []*wrapper.CTDataWrapper
	cacheSet  bool
}

// NewCausalTree creates an empty CausalTree sharing c (or a fresh clock if
// c is nil).
func NewCausalTree(c *clock.ScalarClock) *CausalTree {
	if c == nil {
		c = clock.NewScalarClock()
	}
	return &CausalTree{positions: NewLWWMap(c), clock: c}
}

// Clock returns the tree's shared clock.
func (t *CausalTree) Clock() *clock.ScalarClock { return t.clock }

// Update applies a remote StateUpdate whose Data is an (op, idWrapper,
// writer, datum) quadruple. An "r" op marks the datum as a tombstone
// (Visible false); it is still stored, so ReadFull keeps returning it.
func (t *CausalTree) Update(su update.StateUpdate) error {
	if string(su.ClockUUID) != string(t.clock.UUID()) {
		return newErr(KindUsage, "CausalTree.Update", "state_update.clock_uuid must equal clock.uuid")
	}
	quad, ok := su.Data.(wrapper.Tuple)
	if !ok || len(quad) != 4 {
		return newErr(KindTypeInvalid, "CausalTree.Update", "state_update.data must be a 4-tuple")
	}
	op, ok := quad[0].(string)
	if !ok || (op != "o" && op != "r") {
		return newErr(KindValueInvalid, "CausalTree.Update", "op must be \"o\" or \"r\"")
	}
	idw, ok := quad[1].(wrapper.Packable)
	if !ok {
		return newErr(KindTypeInvalid, "CausalTree.Update", "id must be Packable")
	}
	writer, ok := quad[2].(int)
	if !ok {
		return newErr(KindTypeInvalid, "CausalTree.Update", "writer must be int")
	}
	datum, ok := quad[3].(*wrapper.CTDataWrapper)
	if !ok {
		return newErr(KindTypeInvalid, "CausalTree.Update", "datum must be *CTDataWrapper")
	}

	if op == "r" {
		datum.Visible = false
	}
	if err := t.positions.Update(update.New(t.clock.UUID(), su.TS, wrapper.Tuple{"o", idw, writer, wrapper.Packable(datum)})); err != nil {
		return err
	}
	t.cacheSet = false
	return nil
}

// Checksums delegates to the underlying LWWMap.
func (t *CausalTree) Checksums(fromTS, untilTS *int) (int, int, uint32, struct {
	Until, Count int
	CRC          uint32
}) {
	return t.positions.Checksums(fromTS, untilTS)
}

// History delegates to the underlying LWWMap.
func (t *CausalTree) History() []update.StateUpdate { return t.positions.History() }

// calculateCache rebuilds the linked parent/child structure from every live
// register's datum and walks it depth-first, pre-order, breaking ties
// between siblings by uuid.
func (t *CausalTree) calculateCache() {
	var data []*wrapper.CTDataWrapper
	for _, reg := range t.positions.registers {
		if datum, ok := reg.Read().(*wrapper.CTDataWrapper); ok {
			data = append(data, datum)
		}
	}

	byUUID := make(map[string]*wrapper.CTDataWrapper, len(data))
	for _, d := range data {
		byUUID[string(d.UUID)] = d
	}
	for _, d := range data {
		if parent, ok := byUUID[string(d.ParentUUID)]; ok {
			parent.AddChild(d)
			d.SetParent(parent)
		}
	}

	childrenOf := func(parentUUID []byte) []*wrapper.CTDataWrapper {
		var kids []*wrapper.CTDataWrapper
		for _, d := range data {
			if bytes.Equal(d.ParentUUID, parentUUID) {
				kids = append(kids, d)
			}
		}
		sort.Slice(kids, func(i, j int) bool { return bytes.Compare(kids[i].UUID, kids[j].UUID) < 0 })
		return kids
	}

	var walk func(parentUUID []byte) []*wrapper.CTDataWrapper
	walk = func(parentUUID []byte) []*wrapper.CTDataWrapper {
		var out []*wrapper.CTDataWrapper
		for _, child := range childrenOf(parentUUID) {
			out = append(out, child)
			out = append(out, walk(child.UUID)...)
		}
		return out
	}

	reachable := walk([]byte{})
	inTree := make(map[string]bool, len(reachable))
	for _, d := range reachable {
		inTree[string(d.UUID)] = true
	}

	var excluded []*wrapper.CTDataWrapper
	for _, d := range data {
		if !inTree[string(d.UUID)] {
			excluded = append(excluded, d)
		}
	}
	sort.Slice(excluded, func(i, j int) bool { return bytes.Compare(excluded[i].UUID, excluded[j].UUID) < 0 })

	t.cache = reachable
	t.excluded = excluded
	t.cacheSet = true
}

// ReadFull returns the full, eventually-consistent ordered list of data,
// including tombstones. Only a datum from here can be used with Delete.
func (t *CausalTree) ReadFull() []*wrapper.CTDataWrapper {
	if !t.cacheSet {
		t.calculateCache()
	}
	out := make([]*wrapper.CTDataWrapper, len(t.cache))
	copy(out, t.cache)
	return out
}

// Read returns the eventually-consistent ordered values, omitting
// tombstones.
func (t *CausalTree) Read() []wrapper.Packable {
	var out []wrapper.Packable
	for _, d := range t.ReadFull() {
		if d.Visible {
			out = append(out, d.Value)
		}
	}
	return out
}

// ReadFullExcluded returns every datum, tombstoned or not, that concurrent
// moves have left in a component unreachable from the root — the nodes
// calculateCache's reachability partition dropped out of ReadFull.
func (t *CausalTree) ReadFullExcluded() []*wrapper.CTDataWrapper {
	if !t.cacheSet {
		t.calculateCache()
	}
	out := make([]*wrapper.CTDataWrapper, len(t.excluded))
	copy(out, t.excluded)
	return out
}

// ReadExcluded returns the unwrapped values of ReadFullExcluded's visible
// (non-tombstoned) entries.
func (t *CausalTree) ReadExcluded() []wrapper.Packable {
	var out []wrapper.Packable
	for _, d := range t.ReadFullExcluded() {
		if d.Visible {
			out = append(out, d.Value)
		}
	}
	return out
}

// Put creates, applies, and returns a StateUpdate that inserts item after
// parent (b'' for a root-level insert), identified by the given uuid.
func (t *CausalTree) Put(item wrapper.Packable, writer int, id, parent []byte) (update.StateUpdate, error) {
	datum := wrapper.NewCTDataWrapper(item, id, parent)
	su := update.New(t.clock.UUID(), t.clock.Read(), wrapper.Tuple{"o", wrapper.BytesWrapper{Value: id}, writer, wrapper.Packable(datum)})
	if err := t.Update(su); err != nil {
		return update.StateUpdate{}, err
	}
	return su, nil
}

// PutAfter creates, applies, and returns a StateUpdate that inserts item
// immediately after parent, which must already be positioned.
func (t *CausalTree) PutAfter(item wrapper.Packable, writer int, parent *wrapper.CTDataWrapper) (update.StateUpdate, error) {
	id := uuid.New()
	return t.Put(item, writer, id[:], parent.UUID)
}

// PutFirst creates, applies, and returns a StateUpdate that inserts item at
// the root level. If another item was already put first, tie-breaking by
// uuid may place this one second.
func (t *CausalTree) PutFirst(item wrapper.Packable, writer int) (update.StateUpdate, error) {
	id := uuid.New()
	return t.Put(item, writer, id[:], []byte{})
}

// MoveItem creates, applies, and returns a StateUpdate that re-parents datum
// under newParent by writing a new CT-datum at the same uuid with the
// updated parent. Concurrent moves that introduce a cycle are handled by
// calculateCache's reachability partition, not rejected here.
func (t *CausalTree) MoveItem(datum *wrapper.CTDataWrapper, writer int, newParent []byte) (update.StateUpdate, error) {
	moved := wrapper.NewCTDataWrapper(datum.Value, datum.UUID, newParent)
	su := update.New(t.clock.UUID(), t.clock.Read(), wrapper.Tuple{"o", wrapper.BytesWrapper{Value: datum.UUID}, writer, wrapper.Packable(moved)})
	if err := t.Update(su); err != nil {
		return update.StateUpdate{}, err
	}
	return su, nil
}

// Delete creates, applies, and returns a StateUpdate that tombstones the
// datum identified by ctdw.
func (t *CausalTree) Delete(ctdw *wrapper.CTDataWrapper, writer int) (update.StateUpdate, error) {
	tombstone := wrapper.NewCTDataWrapper(wrapper.Packable(wrapper.NoneWrapper{}), ctdw.UUID, ctdw.ParentUUID)
	tombstone.Visible = false
	su := update.New(t.clock.UUID(), t.clock.Read(), wrapper.Tuple{"r", wrapper.BytesWrapper{Value: ctdw.UUID}, writer, wrapper.Packable(tombstone)})
	if err := t.Update(su); err != nil {
		return update.StateUpdate{}, err
	}
	return su, nil
}
