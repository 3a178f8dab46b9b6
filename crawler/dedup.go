package crawler

import (
	"crypto/md5"
	"fmt"
	"sync"
)

// DuplicateDetector remembers page content hashes. Some listings serve the
// first page again for out of range page numbers; those visits are skipped
// instead of producing duplicate agents.
type DuplicateDetector struct {
	seenHashes map[string]bool
	mutex      sync.Mutex
}

func NewDuplicateDetector() *DuplicateDetector {
	return &DuplicateDetector{
		seenHashes: make(map[string]bool),
	}
}

// IsDuplicate records html and reports whether it was seen before.
func (dd *DuplicateDetector) IsDuplicate(html string) bool {
	hash := fmt.Sprintf("%x", md5.Sum([]byte(html)))

	dd.mutex.Lock()
	defer dd.mutex.Unlock()

	if dd.seenHashes[hash] {
		return true
	}
	dd.seenHashes[hash] = true
	return false
}
