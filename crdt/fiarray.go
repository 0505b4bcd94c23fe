package crdt

import (
	"math/rand"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Polqt/crdts/clock"
	"github.com/Polqt/crdts/update"
	"github.com/Polqt/crdts/wrapper"
)

// FIArray implements a fractionally-indexed array CRDT: each item's
// position is a decimal stored in an LWWMap, and inserting between two
// items just picks a decimal between their positions (with a small random
// offset to keep concurrent inserts at the same spot from colliding).
type FIArray struct {
	positions *LWWMap
	items     map[string]wrapper.Packable
	clock     *clock.ScalarClock
	cacheFull []wrapper.Packable
	cacheSet  bool
}

// NewFIArray creates an empty FIArray sharing c (or a fresh clock if c is
// nil).
func NewFIArray(c *clock.ScalarClock) *FIArray {
	if c == nil {
		c = clock.NewScalarClock()
	}
	return &FIArray{positions: NewLWWMap(c), items: make(map[string]wrapper.Packable), clock: c}
}

// Clock returns the array's shared clock.
func (a *FIArray) Clock() *clock.ScalarClock { return a.clock }

// Update applies a remote StateUpdate whose Data is an (op, item, writer,
// index) quadruple, where index is a DecimalWrapper position or a
// NoneWrapper for a deletion.
func (a *FIArray) Update(su update.StateUpdate) error {
	if string(su.ClockUUID) != string(a.clock.UUID()) {
		return newErr(KindUsage, "FIArray.Update", "state_update.clock_uuid must equal clock.uuid")
	}
	quad, ok := su.Data.(wrapper.Tuple)
	if !ok || len(quad) != 4 {
		return newErr(KindTypeInvalid, "FIArray.Update", "state_update.data must be a 4-tuple")
	}
	op, ok := quad[0].(string)
	if !ok || (op != "o" && op != "r") {
		return newErr(KindValueInvalid, "FIArray.Update", "op must be \"o\" or \"r\"")
	}
	item, ok := quad[1].(wrapper.Packable)
	if !ok {
		return newErr(KindTypeInvalid, "FIArray.Update", "item must be Packable")
	}
	writer, ok := quad[2].(int)
	if !ok {
		return newErr(KindTypeInvalid, "FIArray.Update", "writer must be int")
	}

	if err := a.positions.Update(update.New(a.clock.UUID(), su.TS, wrapper.Tuple{op, item, writer, quad[3]})); err != nil {
		return err
	}
	a.items[memberKey(item)] = item
	a.updateCache(item, op == "o")
	return nil
}

// Checksums delegates to the underlying LWWMap.
func (a *FIArray) Checksums(fromTS, untilTS *int) (int, int, uint32, struct {
	Until, Count int
	CRC          uint32
}) {
	return a.positions.Checksums(fromTS, untilTS)
}

// History delegates to the underlying LWWMap.
func (a *FIArray) History() []update.StateUpdate { return a.positions.History() }

func (a *FIArray) positionOf(item wrapper.Packable) (decimal.Decimal, bool) {
	key := memberKey(item)
	reg, ok := a.positions.registers[key]
	if !ok {
		return decimal.Zero, false
	}
	dw, ok := reg.Read().(wrapper.DecimalWrapper)
	if !ok {
		return decimal.Zero, false
	}
	return dw.Value, true
}

// calculateCache reads every live item from positions, sorts by (index,
// class name, packed value), and caches the order.
func (a *FIArray) calculateCache() {
	names := a.positions.names.Read()
	full := make([]wrapper.Packable, 0, len(names))
	for _, name := range names {
		if _, ok := a.positions.registers[memberKey(name)]; ok {
			full = append(full, name)
		}
	}
	sort.Slice(full, func(i, j int) bool {
		pi, _ := a.positionOf(full[i])
		pj, _ := a.positionOf(full[j])
		if !pi.Equal(pj) {
			return pi.LessThan(pj)
		}
		ci, cj := className(full[i]), className(full[j])
		if ci != cj {
			return ci < cj
		}
		return string(full[i].Pack()) < string(full[j].Pack())
	})
	a.cacheFull = full
	a.cacheSet = true
}

// ReadFull returns the full, eventually-consistent ordered item list.
func (a *FIArray) ReadFull() []wrapper.Packable {
	if !a.cacheSet {
		a.calculateCache()
	}
	out := make([]wrapper.Packable, len(a.cacheFull))
	copy(out, a.cacheFull)
	return out
}

// Read returns the eventually-consistent ordered values.
func (a *FIArray) Read() []wrapper.Packable { return a.ReadFull() }

func (a *FIArray) updateCache(item wrapper.Packable, visible bool) {
	if !a.cacheSet {
		a.calculateCache()
	}
	key := memberKey(item)
	idx := -1
	for i, v := range a.cacheFull {
		if memberKey(v) == key {
			idx = i
			break
		}
	}
	if idx >= 0 {
		a.cacheFull = append(a.cacheFull[:idx], a.cacheFull[idx+1:]...)
	}
	if visible {
		if _, ok := a.positionOf(item); ok {
			pos, _ := a.positionOf(item)
			insertAt := sort.Search(len(a.cacheFull), func(i int) bool {
				p, _ := a.positionOf(a.cacheFull[i])
				return p.GreaterThanOrEqual(pos)
			})
			a.cacheFull = append(a.cacheFull, nil)
			copy(a.cacheFull[insertAt+1:], a.cacheFull[insertAt:])
			a.cacheFull[insertAt] = item
		}
	}
}

// leastSignificantDigitExponent returns the power of ten of d's least
// significant digit, e.g. 0.201 -> -3. shopspring/decimal tracks a value as
// coefficient * 10^exponent internally, so this is just d.Exponent() — no
// string parsing needed.
func leastSignificantDigitExponent(d decimal.Decimal) int32 {
	return d.Exponent()
}

// indexOffset nudges index by a small random amount one order of magnitude
// below its least significant digit, so that concurrent inserts choosing
// the same nominal position diverge instead of colliding.
func indexOffset(index decimal.Decimal) decimal.Decimal {
	exponent := leastSignificantDigitExponent(index) - 1
	digit := int64(1 + rand.Intn(8))
	offset := decimal.New(digit, exponent)
	return index.Add(offset)
}

// indexBetween returns a position between first and second with a random
// offset.
func indexBetween(first, second decimal.Decimal) decimal.Decimal {
	mid := first.Add(second).Div(decimal.NewFromInt(2))
	return indexOffset(mid)
}

// Put creates, applies, and returns a StateUpdate that places item at index.
func (a *FIArray) Put(item wrapper.Packable, writer int, index decimal.Decimal) (update.StateUpdate, error) {
	su := update.New(a.clock.UUID(), a.clock.Read(), wrapper.Tuple{"o", item, writer, wrapper.DecimalWrapper{Value: index}})
	if err := a.Update(su); err != nil {
		return update.StateUpdate{}, err
	}
	return su, nil
}

// PutBetween creates, applies, and returns a StateUpdate that places item
// between first and second, both of which must already have a position.
func (a *FIArray) PutBetween(item wrapper.Packable, writer int, first, second wrapper.Packable) (update.StateUpdate, error) {
	firstIdx, ok1 := a.positionOf(first)
	secondIdx, ok2 := a.positionOf(second)
	if !ok1 || !ok2 {
		return update.StateUpdate{}, newErr(KindUsage, "FIArray.PutBetween", "both neighbors must already be positioned")
	}
	return a.Put(item, writer, indexBetween(firstIdx, secondIdx))
}

// PutFirst creates, applies, and returns a StateUpdate that places item
// before every existing item.
func (a *FIArray) PutFirst(item wrapper.Packable, writer int) (update.StateUpdate, error) {
	full := a.ReadFull()
	var index decimal.Decimal
	if len(full) > 0 {
		firstIdx, _ := a.positionOf(full[0])
		index = decimal.Zero.Add(firstIdx).Div(decimal.NewFromInt(2))
	} else {
		index = decimal.RequireFromString("0.5")
	}
	return a.Put(item, writer, indexOffset(index))
}

// PutLast creates, applies, and returns a StateUpdate that places item
// after every existing item.
func (a *FIArray) PutLast(item wrapper.Packable, writer int) (update.StateUpdate, error) {
	full := a.ReadFull()
	var index decimal.Decimal
	if len(full) > 0 {
		lastIdx, _ := a.positionOf(full[len(full)-1])
		index = lastIdx.Add(decimal.NewFromInt(1)).Div(decimal.NewFromInt(2))
	} else {
		index = decimal.RequireFromString("0.5")
	}
	return a.Put(item, writer, indexOffset(index))
}

// PutBefore creates, applies, and returns a StateUpdate that places item
// immediately before other, which must already have a position.
func (a *FIArray) PutBefore(item wrapper.Packable, writer int, other wrapper.Packable) (update.StateUpdate, error) {
	otherIdx, ok := a.positionOf(other)
	if !ok {
		return update.StateUpdate{}, newErr(KindUsage, "FIArray.PutBefore", "other must already be positioned")
	}
	full := a.ReadFull()
	priorIdx := decimal.Zero
	for i, v := range full {
		if memberKey(v) == memberKey(other) && i > 0 {
			priorIdx, _ = a.positionOf(full[i-1])
			break
		}
	}
	return a.Put(item, writer, indexBetween(otherIdx, priorIdx))
}

// PutAfter creates, applies, and returns a StateUpdate that places item
// immediately after other, which must already have a position.
func (a *FIArray) PutAfter(item wrapper.Packable, writer int, other wrapper.Packable) (update.StateUpdate, error) {
	otherIdx, ok := a.positionOf(other)
	if !ok {
		return update.StateUpdate{}, newErr(KindUsage, "FIArray.PutAfter", "other must already be positioned")
	}
	full := a.ReadFull()
	nextIdx := decimal.NewFromInt(1)
	for i, v := range full {
		if memberKey(v) == memberKey(other) && i+1 < len(full) {
			nextIdx, _ = a.positionOf(full[i+1])
			break
		}
	}
	return a.Put(item, writer, indexBetween(otherIdx, nextIdx))
}

// Delete creates, applies, and returns a StateUpdate that removes item.
func (a *FIArray) Delete(item wrapper.Packable, writer int) (update.StateUpdate, error) {
	su := update.New(a.clock.UUID(), a.clock.Read(), wrapper.Tuple{"r", item, writer, wrapper.Packable(wrapper.NoneWrapper{})})
	if err := a.Update(su); err != nil {
		return update.StateUpdate{}, err
	}
	return su, nil
}
