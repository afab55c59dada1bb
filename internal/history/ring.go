// Package history provides bounded retention for the convergence log.
package history

// DefaultCapacity is the number of entries retained when no capacity is configured.
const DefaultCapacity = 256

// Ring is an append-only log that keeps the most recent entries.
// A capacity of 0 retains everything. Total always reports the number of
// entries ever appended, regardless of how many were evicted.
type Ring struct {
	entries  []string
	capacity int
	start    int
	total    int
}

// NewRing creates a ring retaining at most capacity entries.
// Negative capacities are treated as unbounded.
func NewRing(capacity int) *Ring {
	if capacity < 0 {
		capacity = 0
	}
	r := &Ring{capacity: capacity}
	if capacity > 0 {
		r.entries = make([]string, 0, capacity)
	}
	return r
}

// Append records an entry, evicting the oldest one when full.
func (r *Ring) Append(entry string) {
	r.total++
	if r.capacity == 0 || len(r.entries) < r.capacity {
		r.entries = append(r.entries, entry)
		return
	}
	r.entries[r.start] = entry
	r.start = (r.start + 1) % r.capacity
}

// Len returns the number of retained entries.
func (r *Ring) Len() int {
	return len(r.entries)
}

// Total returns the number of entries appended since creation.
func (r *Ring) Total() int {
	return r.total
}

// Capacity returns the retention limit (0 = unbounded).
func (r *Ring) Capacity() int {
	return r.capacity
}

// Entries returns the retained entries, oldest first.
func (r *Ring) Entries() []string {
	out := make([]string, 0, len(r.entries))
	out = append(out, r.entries[r.start:]...)
	out = append(out, r.entries[:r.start]...)
	return out
}

// Last returns up to n of the most recent entries, oldest first.
func (r *Ring) Last(n int) []string {
	all := r.Entries()
	if n <= 0 {
		return []string{}
	}
	if n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}
