package scanner

import (
	"os"
	"sync"
)

// visitedSet deduplicates followed symlink targets by (device, inode) so a
// cyclical symlink chain cannot make a single Scan walk loop forever. It is
// created fresh per Scan call; entries are never expired within that call.
type visitedSet struct {
	mu    sync.Mutex
	infos []os.FileInfo
}

func newVisitedSet() *visitedSet {
	return &visitedSet{}
}

// admit reports whether target has not been seen before by this set, and
// records it if so. os.SameFile compares the underlying (device, inode)
// pair rather than the path, so two different symlinks resolving to the
// same target are recognized as the same file.
func (v *visitedSet) admit(target os.FileInfo) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, seen := range v.infos {
		if os.SameFile(seen, target) {
			return false
		}
	}
	v.infos = append(v.infos, target)
	return true
}
