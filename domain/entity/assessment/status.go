package assessment

// Status is the lifecycle state of an assessment.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether s -> to is a legal transition.
// Only running -> completed and running -> failed exist.
func (s Status) CanTransitionTo(to Status) bool {
	return s == StatusRunning && to.IsTerminal()
}

// Type is the assessment methodology.
type Type string

const (
	TypeBlackbox Type = "blackbox"
	TypeWhitebox Type = "whitebox"
)

// IsValid reports whether t is a known assessment type.
func (t Type) IsValid() bool {
	return t == TypeBlackbox || t == TypeWhitebox
}

// TargetType is the kind of system under assessment.
type TargetType string

const (
	TargetWebApp  TargetType = "web_app"
	TargetAPI     TargetType = "api"
	TargetMobile  TargetType = "mobile"
	TargetNetwork TargetType = "network"
)

// IsValid reports whether t is a known target type.
func (t TargetType) IsValid() bool {
	switch t {
	case TargetWebApp, TargetAPI, TargetMobile, TargetNetwork:
		return true
	}
	return false
}
