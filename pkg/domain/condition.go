package domain

import "fmt"

// ConditionKind tags the eligibility rule variants. The source system stored
// these as free-form JSON blobs; here they are a closed set so evaluation
// stays exhaustive and testable.
const (
	// ConditionAlways holds for every user.
	ConditionAlways = "always"
	// ConditionRequiresRole holds when the acting user's role matches Role.
	ConditionRequiresRole = "requires_role"
	// ConditionRequiresRegistered holds when the acting user is not a guest
	// placeholder.
	ConditionRequiresRegistered = "requires_registered_user"
)

// Condition is a tagged eligibility rule attached to an Option.
type Condition struct {
	Kind string `json:"kind" yaml:"kind" mapstructure:"kind"`

	// Role is the required role for ConditionRequiresRole.
	Role string `json:"role,omitempty" yaml:"role,omitempty" mapstructure:"role"`
}

// Validate rejects unknown kinds at graph-load time, so Eval never has to.
func (c Condition) Validate() error {
	switch c.Kind {
	case ConditionAlways, ConditionRequiresRegistered:
		return nil
	case ConditionRequiresRole:
		if c.Role == "" {
			return fmt.Errorf("condition %s requires a role", c.Kind)
		}
		return nil
	default:
		return fmt.Errorf("unknown condition kind %q", c.Kind)
	}
}

// Eval reports whether the condition holds for the acting assignment.
func (c Condition) Eval(a RoleAssignment) bool {
	switch c.Kind {
	case ConditionRequiresRole:
		return a.Role == c.Role
	case ConditionRequiresRegistered:
		return !a.Guest
	default:
		// ConditionAlways; unknown kinds were rejected by Validate.
		return true
	}
}

// Eligible reports whether every condition of the option holds for the
// acting assignment.
func (o *Option) Eligible(a RoleAssignment) bool {
	for _, c := range o.Conditions {
		if !c.Eval(a) {
			return false
		}
	}
	return true
}
