// Package merkle builds Merklized histories over a CRDT's StateUpdate
// stream so two replicas can find out which updates they are missing from
// each other without exchanging the full history up front.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"sort"

	"github.com/pkg/errors"

	"github.com/Polqt/crdts/update"
)

// Historied is implemented by any CRDT that can produce its own concise
// StateUpdate history.
type Historied interface {
	History() []update.StateUpdate
}

// History is a Merklized view over a CRDT's update history: Root is the hash
// of the sorted, concatenated leaf ids; Leaves holds those ids in the same
// sorted order; ByLeaf maps each leaf id back to the packed update it was
// computed from, so a peer can request exactly the leaves it's missing.
type History struct {
	Root   []byte
	Leaves [][]byte
	ByLeaf map[string][]byte
}

// Get computes the Merklized history of h.
func Get(h Historied) History {
	updates := h.History()
	leafIDs := make([][]byte, 0, len(updates))
	byLeaf := make(map[string][]byte, len(updates))

	for _, u := range updates {
		packed := u.Pack()
		sum := sha256.Sum256(packed)
		id := sum[:]
		leafIDs = append(leafIDs, id)
		byLeaf[string(id)] = packed
	}

	sort.Slice(leafIDs, func(i, j int) bool { return bytes.Compare(leafIDs[i], leafIDs[j]) < 0 })

	concat := make([]byte, 0, len(leafIDs)*sha256.Size)
	for _, id := range leafIDs {
		concat = append(concat, id...)
	}
	root := sha256.Sum256(concat)

	return History{Root: root[:], Leaves: leafIDs, ByLeaf: byLeaf}
}

// Resolve compares a peer's History against h's own, returning the leaf ids
// present in peerLeaves but absent locally. When the roots match it returns
// nil without comparing leaves; a nil result with differing roots means the
// peer holds no leaf that h lacks (h may still hold leaves the peer lacks).
func Resolve(h Historied, peerRoot []byte, peerLeaves [][]byte) ([][]byte, error) {
	if peerRoot == nil {
		return nil, errors.New("merkle: peer root must not be nil")
	}
	local := Get(h)
	if bytes.Equal(local.Root, peerRoot) {
		return nil, nil
	}

	localSet := make(map[string]struct{}, len(local.Leaves))
	for _, id := range local.Leaves {
		localSet[string(id)] = struct{}{}
	}

	var missing [][]byte
	for _, id := range peerLeaves {
		if _, ok := localSet[string(id)]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
