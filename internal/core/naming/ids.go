package naming

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

const idDigits = 6

// IDAllocator hands out fixed-width document ids such as V000123. It is
// scoped to a single run: seed it with the highest id already present in the
// buffer log so ids never repeat across runs.
type IDAllocator struct {
	mu     sync.Mutex
	prefix string
	last   int
	byKey  map[string]string
}

func NewIDAllocator(prefix string, lastIssued int) *IDAllocator {
	if prefix == "" {
		prefix = "V"
	}
	return &IDAllocator{
		prefix: prefix,
		last:   lastIssued,
		byKey:  make(map[string]string),
	}
}

// Assign returns the id for documentKey, minting one on first use.
func (a *IDAllocator) Assign(documentKey string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if id, ok := a.byKey[documentKey]; ok {
		return id
	}
	a.last++
	id := FormatID(a.prefix, a.last)
	a.byKey[documentKey] = id
	return id
}

// Remember binds an id looked up elsewhere to documentKey so later calls in
// the same run return it instead of minting.
func (a *IDAllocator) Remember(documentKey, id string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.byKey[documentKey] = id
	if n, ok := ParseID(a.prefix, id); ok && n > a.last {
		a.last = n
	}
}

func FormatID(prefix string, n int) string {
	return fmt.Sprintf("%s%0*d", prefix, idDigits, n)
}

func ParseID(prefix, id string) (int, bool) {
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, prefix))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// HighestID returns the largest numeric suffix among ids carrying prefix.
func HighestID(prefix string, ids []string) int {
	highest := 0
	for _, id := range ids {
		if n, ok := ParseID(prefix, id); ok && n > highest {
			highest = n
		}
	}
	return highest
}
