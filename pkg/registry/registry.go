package registry

import (
	"sort"
)

// Program categories stored in program_registry.program_type.
const (
	CategorySystem = "System"
	CategoryToken  = "Token"
	CategoryDEX    = "DEX"
	CategoryNFT    = "NFT"

	// CategoryCompute covers fee and compute-limit programs that accompany most transactions.
	CategoryCompute = "Compute"
)

// Entry describes one known on-chain program.
type Entry struct {
	ProgramID   string
	Name        string
	Category    string
	Description string
}

// Registry maps program ids to entries. It is built once and never mutated,
// so it can be shared between goroutines without locking.
type Registry struct {
	entries map[string]Entry
}

// New builds a registry; a later entry for the same id replaces an earlier one.
func New(entries []Entry) *Registry {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		if e.ProgramID == "" {
			continue
		}
		m[e.ProgramID] = e
	}
	return &Registry{entries: m}
}

// Merge returns a new registry with overlay entries replacing base entries.
func Merge(base, overlay *Registry) *Registry {
	out := make([]Entry, 0, base.Len()+overlay.Len())
	out = append(out, base.Entries()...)
	out = append(out, overlay.Entries()...)
	return New(out)
}

// Resolve returns the entry for programID. A miss is the normal outcome for
// unrecognized programs, not an error.
func (r *Registry) Resolve(programID string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	e, ok := r.entries[programID]
	return e, ok
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Entries returns a copy of all entries ordered by program id.
func (r *Registry) Entries() []Entry {
	if r == nil {
		return nil
	}
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProgramID < out[j].ProgramID })
	return out
}
