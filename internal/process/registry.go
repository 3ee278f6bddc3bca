package process

import (
	"fmt"
	"sync"

	"j5.nz/beamrt/internal/atomtable"
	"j5.nz/beamrt/internal/term"
)

// Registry owns every live process, keyed by pid, plus the registered-name
// table used by erlang:register/2 and erlang:whereis/1. Guarded by
// a mutex even though the scheduler itself is single-threaded, matching
// the atom table's own defensive locking in
// case a future extension runs registry lookups off the scheduler thread.
type Registry struct {
	mu        sync.Mutex
	processes map[uint64]*Process
	names     map[uint64]term.Term // registered name atom -> pid/port term
	nextPid   uint64
}

// NewRegistry returns an empty registry. Pids are allocated starting at 1;
// 0 is reserved so a zero-valued pid term is never mistaken for a real
// process.
func NewRegistry() *Registry {
	return &Registry{
		processes: make(map[uint64]*Process),
		names:     make(map[uint64]term.Term),
		nextPid:   1,
	}
}

// NextPid allocates the next pid index without registering a process
// under it yet, so Process.New (which needs a pid before it exists) and
// Registry.Add can be called in either order.
func (r *Registry) NextPid() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	pid := r.nextPid
	r.nextPid++
	return pid
}

// Add registers p under its own pid.
func (r *Registry) Add(p *Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processes[p.Pid] = p
}

// Remove drops a process and any registered name pointing at it, for
// process termination.
func (r *Registry) Remove(pid uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.processes, pid)
	for name, t := range r.names {
		if t.Tag() == term.TagLocalPid && t.PidIndex() == pid {
			delete(r.names, name)
		}
	}
}

// Lookup finds a process by pid.
func (r *Registry) Lookup(pid uint64) (*Process, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.processes[pid]
	return p, ok
}

// Register binds nameAtom to target (a local pid or port term). Fails
// with badarg if nameAtom is the atom 'undefined' or already registered.
func (r *Registry) Register(nameAtom uint64, target term.Term) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if nameAtom == atomtable.AtomUndefined {
		return fmt.Errorf("process: badarg registering name 'undefined'")
	}
	if _, exists := r.names[nameAtom]; exists {
		return fmt.Errorf("process: badarg, name already registered")
	}
	r.names[nameAtom] = target
	return nil
}

// Unregister removes a registered name, if present.
func (r *Registry) Unregister(nameAtom uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.names, nameAtom)
}

// Whereis resolves a registered name back to its pid/port term.
func (r *Registry) Whereis(nameAtom uint64) (term.Term, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.names[nameAtom]
	return t, ok
}
