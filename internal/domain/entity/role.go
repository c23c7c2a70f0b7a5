package entity

// Role identifies an approver role. The set is closed: rules referencing a
// role outside this table fail validation, so the step orchestrator never
// sees an unknown role at runtime.
type Role string

const (
	RoleManager    Role = "MANAGER"
	RoleFinance    Role = "FINANCE"
	RoleDirector   Role = "DIRECTOR"
	RoleExecutive  Role = "EXECUTIVE"
	RoleProcurer   Role = "PROCUREMENT"
	RoleController Role = "CONTROLLER"
)

// Capability names an action a role may perform. The table below is fixed at
// build time; there is no mutable role/permission store to drift from it.
type Capability string

const (
	CapApproveStep   Capability = "APPROVE_STEP"
	CapRecordPayment Capability = "RECORD_PAYMENT"
	CapManageRules   Capability = "MANAGE_RULES"
	CapViewAudit     Capability = "VIEW_AUDIT"
)

var roleCapabilities = map[Role][]Capability{
	RoleManager:    {CapApproveStep},
	RoleFinance:    {CapApproveStep, CapRecordPayment, CapViewAudit},
	RoleDirector:   {CapApproveStep, CapViewAudit},
	RoleExecutive:  {CapApproveStep, CapViewAudit},
	RoleProcurer:   {CapApproveStep, CapManageRules},
	RoleController: {CapRecordPayment, CapManageRules, CapViewAudit},
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// IsValid returns true if the role is part of the closed role table
func (r Role) IsValid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// HasCapability reports whether the role is granted the capability.
func (r Role) HasCapability(c Capability) bool {
	for _, cap := range roleCapabilities[r] {
		if cap == c {
			return true
		}
	}
	return false
}

// AllRoles returns the closed set of roles in a stable order.
func AllRoles() []Role {
	return []Role{
		RoleManager, RoleFinance, RoleDirector,
		RoleExecutive, RoleProcurer, RoleController,
	}
}
