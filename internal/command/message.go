package command

import "fmt"

// Batch is one decoded remote command message: a count plus parallel arrays
// of joint names and per-joint command fields.
type Batch struct {
	Utime     int64    `json:"utime"`
	NumJoints int      `json:"num_joints"`
	JointName []string `json:"joint_name"`

	Position []float64 `json:"position"`
	Velocity []float64 `json:"velocity"`
	Effort   []float64 `json:"effort"`

	KqP  []float64 `json:"k_q_p"`
	KqI  []float64 `json:"k_q_i"`
	KqdP []float64 `json:"k_qd_p"`
	KfP  []float64 `json:"k_f_p"`

	FFqd    []float64 `json:"ff_qd"`
	FFqdD   []float64 `json:"ff_qd_d"`
	FFfD    []float64 `json:"ff_f_d"`
	FFConst []float64 `json:"ff_const"`
}

// Validate checks that every parallel array covers NumJoints entries.
func (b *Batch) Validate() error {
	n := b.NumJoints
	if n < 0 {
		return fmt.Errorf("negative joint count %d", n)
	}
	arrays := []struct {
		name string
		len  int
	}{
		{"joint_name", len(b.JointName)},
		{"position", len(b.Position)},
		{"velocity", len(b.Velocity)},
		{"effort", len(b.Effort)},
		{"k_q_p", len(b.KqP)},
		{"k_q_i", len(b.KqI)},
		{"k_qd_p", len(b.KqdP)},
		{"k_f_p", len(b.KfP)},
		{"ff_qd", len(b.FFqd)},
		{"ff_qd_d", len(b.FFqdD)},
		{"ff_f_d", len(b.FFfD)},
		{"ff_const", len(b.FFConst)},
	}
	for _, a := range arrays {
		if a.len < n {
			return fmt.Errorf("array %s has %d entries, message claims %d joints", a.name, a.len, n)
		}
	}
	return nil
}

// Command assembles the full JointCommand record for entry i.
func (b *Batch) Command(i int) JointCommand {
	return JointCommand{
		Position: b.Position[i],
		Velocity: b.Velocity[i],
		Effort:   b.Effort[i],
		KqP:      b.KqP[i],
		KqI:      b.KqI[i],
		KqdP:     b.KqdP[i],
		KfP:      b.KfP[i],
		FFqd:     b.FFqd[i],
		FFqdD:    b.FFqdD[i],
		FFfD:     b.FFfD[i],
		FFConst:  b.FFConst[i],
	}
}

// Apply overwrites the store entry for every known joint named by the batch.
// Unknown names are skipped without error. Returns the number of joints
// whose command was replaced.
func (b *Batch) Apply(store *Store) int {
	applied := 0
	for i := 0; i < b.NumJoints; i++ {
		if store.Update(b.JointName[i], b.Command(i)) {
			applied++
		}
	}
	return applied
}
