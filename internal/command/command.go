// Package command holds the latest remote joint command per claimed joint and
// the ingestion path that keeps it current: a background UDP receiver buffers
// decoded command batches off the critical path, and the control tick drains
// them into the Store before running the control law.
package command

import (
	"sort"
	"sync"
)

// JointCommand is the full remote command record for one joint: targets,
// PID-style gains, and feedforward terms. A command message replaces the
// whole record; there are no partial-field updates. Field names follow the
// upstream command schema.
type JointCommand struct {
	Position float64 `json:"position"`
	Velocity float64 `json:"velocity"`
	Effort   float64 `json:"effort"`

	// Gains
	KqP  float64 `json:"k_q_p"`  // position proportional
	KqI  float64 `json:"k_q_i"`  // position integral
	KqdP float64 `json:"k_qd_p"` // velocity proportional
	KfP  float64 `json:"k_f_p"`  // force proportional

	// Feedforward terms
	FFqd    float64 `json:"ff_qd"`    // measured velocity
	FFqdD   float64 `json:"ff_qd_d"`  // desired velocity
	FFfD    float64 `json:"ff_f_d"`   // desired effort
	FFConst float64 `json:"ff_const"` // constant
}

// Store maps joint names to their latest command. The key set is fixed when
// the store is built: updates for unknown joints are ignored and never
// insert. Reads and writes may come from different goroutines (the UDP
// receiver delivers on its own goroutine), so access is mutex-guarded with
// per-joint update atomicity.
type Store struct {
	mu       sync.Mutex
	commands map[string]JointCommand
}

// NewStore builds a Store pre-populated with zeroed commands for every
// claimed joint name. The key set never changes afterwards.
func NewStore(names []string) *Store {
	commands := make(map[string]JointCommand, len(names))
	for _, name := range names {
		commands[name] = JointCommand{}
	}
	return &Store{commands: commands}
}

// Update replaces the command for name as a unit. Unknown names are silently
// ignored: the claimed-joint set is closed, and other controllers may share
// the command channel. Returns whether the name was known.
func (s *Store) Update(name string, cmd JointCommand) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.commands[name]; !ok {
		return false
	}
	s.commands[name] = cmd
	return true
}

// Read returns the current command for name. The zero command is returned
// for joints never claimed; callers iterate only over claimed names.
func (s *Store) Read(name string) JointCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commands[name]
}

// Len returns the number of joints in the store. Constant after NewStore.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.commands)
}

// Names returns the claimed joint names in sorted order.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the full command map for debug surfaces.
func (s *Store) Snapshot() map[string]JointCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]JointCommand, len(s.commands))
	for name, cmd := range s.commands {
		out[name] = cmd
	}
	return out
}
