package crdt

import "github.com/Polqt/crdts/update"

// Listener is invoked synchronously with every StateUpdate passed to a
// CRDT's Update, before the update is validated or folded into local state.
// MVMap is the only CRDT that embeds listeners and calls them this way, so
// an observer can inspect an incoming change while still seeing the
// pre-merge state; the other CRDT types (LWWMap included) have no listener
// support, and there is no way to remove a registered listener.
type Listener func(su update.StateUpdate)

// listeners is embedded by CRDTs that support observer registration.
type listeners struct {
	fns []Listener
}

// AddListener registers fn to be invoked on every accepted update.
func (l *listeners) AddListener(fn Listener) {
	l.fns = append(l.fns, fn)
}

// invoke calls every registered listener with su, in registration order.
func (l *listeners) invoke(su update.StateUpdate) {
	for _, fn := range l.fns {
		fn(su)
	}
}
