// Package profiling accumulates wall time per named section over one
// scheduler tick.
package profiling

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Section is the time spent in one named section during the current tick.
type Section struct {
	Name  string
	Total time.Duration
	Calls int
}

var (
	mu       sync.Mutex
	sections = make(map[string]*Section)
)

// Track returns a stop function that records the elapsed time under name.
// Usage: defer profiling.Track("world.Update")()
func Track(name string) func() {
	start := time.Now()
	return func() {
		d := time.Since(start)
		mu.Lock()
		s, ok := sections[name]
		if !ok {
			s = &Section{Name: name}
			sections[name] = s
		}
		s.Total += d
		s.Calls++
		mu.Unlock()
	}
}

// ResetFrame clears the totals. Call it at the start of each tick.
func ResetFrame() {
	mu.Lock()
	clear(sections)
	mu.Unlock()
}

// Snapshot returns the sections recorded since the last reset, slowest first.
func Snapshot() []Section {
	mu.Lock()
	out := make([]Section, 0, len(sections))
	for _, s := range sections {
		out = append(out, *s)
	}
	mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// TopN formats the n slowest sections, e.g. "world.Update:4.2ms(1)".
func TopN(n int) string {
	list := Snapshot()
	if n < len(list) {
		list = list[:n]
	}
	parts := make([]string, len(list))
	for i, s := range list {
		parts[i] = fmt.Sprintf("%s:%.1fms(%d)", s.Name, float64(s.Total.Microseconds())/1000, s.Calls)
	}
	return strings.Join(parts, ", ")
}
