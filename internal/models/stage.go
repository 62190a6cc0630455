package models

// Slot identifies a stage position in the pipeline: "a", "b", or "c".
type Slot string

const (
	SlotA Slot = "a"
	SlotB Slot = "b"
	SlotC Slot = "c"
)

// Role is what a stage does with its input.
type Role string

const (
	RoleDraft     Role = "draft"
	RoleRefine    Role = "refine"
	RoleSynthesis Role = "synthesis"
)

// Stage is one ordered step of the fixed pipeline.
type Stage struct {
	PassIndex int
	Slot      Slot
	Role      Role
}

// Stages returns the fixed three-stage chain in execution order.
// The pipeline is a chain, not a DAG; stage N+1 consumes stage N's
// output.
func Stages() []Stage {
	return []Stage{
		{PassIndex: 1, Slot: SlotA, Role: RoleDraft},
		{PassIndex: 2, Slot: SlotB, Role: RoleRefine},
		{PassIndex: 3, Slot: SlotC, Role: RoleSynthesis},
	}
}
