package model

// Mode is the operating mode of a running session.
type Mode string

const (
	ModeEdit          Mode = "edit"
	ModeReadOnly      Mode = "readonly"
	ModeZombiePending Mode = "zombie_pending"
)

// Decision is the outcome of the startup lock check.
type Decision struct {
	Mode  Mode   `json:"mode"`
	Owner string `json:"owner,omitempty"`
	// AgeHours is set for ModeZombiePending only.
	AgeHours float64 `json:"age_hours,omitempty"`
}

// ZombieChoice is the caller's resolution of a ModeZombiePending decision.
type ZombieChoice string

const (
	ChoiceForce    ZombieChoice = "force"
	ChoiceViewOnly ZombieChoice = "view_only"
)

// Valid reports whether c is a known choice.
func (c ZombieChoice) Valid() bool {
	return c == ChoiceForce || c == ChoiceViewOnly
}
