package crdt

import (
	"sort"

	"github.com/Polqt/crdts/clock"
	"github.com/Polqt/crdts/update"
	"github.com/Polqt/crdts/wrapper"
)

// RGArray implements the Replicated Growable Array CRDT: an ordered
// sequence built on top of an ORSet of (value, (ts, writer)) tuples, with
// the ORSet doing all the convergence work and this type providing an
// ordered view over it.
type RGArray struct {
	items     *ORSet
	clock     *clock.ScalarClock
	cacheFull []wrapper.RGAItemWrapper
	cache     []wrapper.Packable
	cacheSet  bool
}

// NewRGArray creates an empty RGArray sharing c (or a fresh clock if c is
// nil).
func NewRGArray(c *clock.ScalarClock) *RGArray {
	if c == nil {
		c = clock.NewScalarClock()
	}
	r := &RGArray{items: NewORSet(c), clock: c}
	r.calculateCache()
	return r
}

// Clock returns the array's shared clock.
func (r *RGArray) Clock() *clock.ScalarClock { return r.clock }

func rgaSortLess(a, b wrapper.RGAItemWrapper) bool {
	tsA, wA, classA, valA := a.SortKey()
	tsB, wB, classB, valB := b.SortKey()
	if tsA != tsB {
		return tsA < tsB
	}
	if wA != wB {
		return wA < wB
	}
	if classA != classB {
		return classA < classB
	}
	return valA < valB
}

// calculateCache reads the underlying ORSet's current membership, orders it,
// and resets the cached slices.
func (r *RGArray) calculateCache() {
	members := r.items.Read()
	full := make([]wrapper.RGAItemWrapper, 0, len(members))
	for _, m := range members {
		if item, ok := m.(wrapper.RGAItemWrapper); ok {
			full = append(full, item)
		}
	}
	sort.Slice(full, func(i, j int) bool { return rgaSortLess(full[i], full[j]) })
	r.cacheFull = full
	r.cache = nil
	r.cacheSet = false
}

// Read returns the eventually-consistent sequence of underlying values (not
// the RGAItemWrapper envelopes). Cannot be used to prepare a deletion —
// use ReadFull for that.
func (r *RGArray) Read() []wrapper.Packable {
	if r.cacheFull == nil {
		r.calculateCache()
	}
	if !r.cacheSet {
		values := make([]wrapper.Packable, len(r.cacheFull))
		for i, item := range r.cacheFull {
			values[i] = item.Item
		}
		r.cache = values
		r.cacheSet = true
	}
	return r.cache
}

// ReadFull returns the full ordered list of RGAItemWrapper envelopes
// (without tombstones). Only an envelope from here can be used with Delete.
func (r *RGArray) ReadFull() []wrapper.RGAItemWrapper {
	if r.cacheFull == nil {
		r.calculateCache()
	}
	out := make([]wrapper.RGAItemWrapper, len(r.cacheFull))
	copy(out, r.cacheFull)
	return out
}

func rgaFind(cache []wrapper.RGAItemWrapper, item wrapper.RGAItemWrapper) int {
	for i, c := range cache {
		if c.Equal(item) {
			return i
		}
	}
	return -1
}

// updateCache inserts or removes item from the ordered cache in place,
// using binary search to find the insertion point.
func (r *RGArray) updateCache(item wrapper.RGAItemWrapper, visible bool) {
	if r.cacheFull == nil {
		r.calculateCache()
	}
	if visible {
		if rgaFind(r.cacheFull, item) < 0 {
			idx := sort.Search(len(r.cacheFull), func(i int) bool {
				return !rgaSortLess(r.cacheFull[i], item)
			})
			r.cacheFull = append(r.cacheFull, wrapper.RGAItemWrapper{})
			copy(r.cacheFull[idx+1:], r.cacheFull[idx:])
			r.cacheFull[idx] = item
		}
	} else {
		if idx := rgaFind(r.cacheFull, item); idx >= 0 {
			r.cacheFull = append(r.cacheFull[:idx], r.cacheFull[idx+1:]...)
		}
	}
	r.cache = nil
	r.cacheSet = false
}

// Update applies a remote StateUpdate whose Data is an (op, RGAItemWrapper)
// tuple.
func (r *RGArray) Update(su update.StateUpdate) error {
	if string(su.ClockUUID) != string(r.clock.UUID()) {
		return newErr(KindUsage, "RGArray.Update", "state_update.clock_uuid must equal clock.uuid")
	}
	pair, ok := su.Data.(wrapper.Tuple)
	if !ok || len(pair) != 2 {
		return newErr(KindTypeInvalid, "RGArray.Update", "state_update.data must be an (op, item) tuple")
	}
	item, ok := pair[1].(wrapper.RGAItemWrapper)
	if !ok {
		return newErr(KindTypeInvalid, "RGArray.Update", "item must be RGAItemWrapper")
	}

	if err := r.items.Update(su); err != nil {
		return err
	}

	visible := false
	for _, m := range r.items.Read() {
		if rgaItem, ok := m.(wrapper.RGAItemWrapper); ok && rgaItem.Equal(item) {
			visible = true
			break
		}
	}
	r.updateCache(item, visible)
	return nil
}

// Checksums delegates to the underlying ORSet.
func (r *RGArray) Checksums(fromTS, untilTS *int) (int, int, uint32, uint32) {
	return r.items.Checksums(fromTS, untilTS)
}

// History delegates to the underlying ORSet.
func (r *RGArray) History() []update.StateUpdate { return r.items.History(nil, nil) }

// Append creates, applies, and returns a StateUpdate that appends item,
// written by writer, to the end of logical order (its timestamp sorts after
// every existing entry).
func (r *RGArray) Append(item wrapper.Packable, writer int) (update.StateUpdate, error) {
	wrapped := wrapper.RGAItemWrapper{Item: item, TS: r.clock.Read(), Writer: writer}
	su, err := r.items.Observe(wrapped)
	if err != nil {
		return update.StateUpdate{}, err
	}
	if err := r.Update(su); err != nil {
		return update.StateUpdate{}, err
	}
	return su, nil
}

// Delete creates, applies, and returns a StateUpdate that removes item (an
// envelope obtained from ReadFull).
func (r *RGArray) Delete(item wrapper.RGAItemWrapper) (update.StateUpdate, error) {
	su, err := r.items.Remove(item)
	if err != nil {
		return update.StateUpdate{}, err
	}
	if err := r.Update(su); err != nil {
		return update.StateUpdate{}, err
	}
	return su, nil
}
