package access

import (
	"time"
)

// ResourceType is the kind of surface an AccessRule restricts
type ResourceType string

const (
	ResourceTypePage    ResourceType = "page"
	ResourceTypeAPI     ResourceType = "api"
	ResourceTypeFeature ResourceType = "feature"
)

// Valid reports whether t is one of the three rule resource types
func (t ResourceType) Valid() bool {
	switch t {
	case ResourceTypePage, ResourceTypeAPI, ResourceTypeFeature:
		return true
	}
	return false
}

// AccessRule restricts a page, API or feature by role, independently of permissions
type AccessRule struct {
	ID                 int64        `json:"id"`
	ResourceType       ResourceType `json:"resource_type"`
	ResourceKey        string       `json:"resource_key"`
	Description        string       `json:"description,omitempty"`
	AllowedRoles       []string     `json:"allowed_roles"`
	DeniedRoles        []string     `json:"denied_roles"`
	RestrictionMessage string       `json:"restriction_message,omitempty"`
	// HospitalID limits the rule to subjects of one hospital when set
	HospitalID *int64    `json:"hospital_id,omitempty"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RoleLevel is the effective role of a caller for UI restriction purposes
type RoleLevel string

const (
	LevelGuest              RoleLevel = "guest"
	LevelConsultant         RoleLevel = "consultant"
	LevelHospitalStaff      RoleLevel = "hospital_staff"
	LevelHospitalLeadership RoleLevel = "hospital_leadership"
	LevelAdmin              RoleLevel = "admin"
)

// Levels lists every role level
var Levels = []RoleLevel{LevelGuest, LevelConsultant, LevelHospitalStaff, LevelHospitalLeadership, LevelAdmin}

// Valid reports whether l is a known level
func (l RoleLevel) Valid() bool {
	for _, known := range Levels {
		if l == known {
			return true
		}
	}
	return false
}

// Keys returns the role names this level matches in allow and deny lists.
// Leadership is a kind of hospital staff, so it matches both names.
func (l RoleLevel) Keys() []string {
	switch l {
	case LevelHospitalLeadership:
		return []string{string(LevelHospitalStaff), string(LevelHospitalLeadership)}
	case LevelConsultant, LevelHospitalStaff, LevelAdmin:
		return []string{string(l)}
	default:
		return []string{string(LevelGuest)}
	}
}

// Subject is what rules are evaluated against
type Subject struct {
	Level      RoleLevel `json:"level,omitempty"`
	Keys       []string  `json:"keys"`
	HospitalID *int64    `json:"hospital_id,omitempty"`
}

// IsGuest reports whether the subject is the unauthenticated fallback
func (s Subject) IsGuest() bool {
	return len(s.Keys) == 0 || (len(s.Keys) == 1 && s.Keys[0] == string(LevelGuest))
}

// SubjectForLevel builds a subject for a known level
func SubjectForLevel(level RoleLevel, hospitalID *int64) Subject {
	if !level.Valid() {
		level = LevelGuest
	}
	return Subject{Level: level, Keys: level.Keys(), HospitalID: hospitalID}
}

// SubjectForRole maps a stored role string to a subject. A nil role is a guest.
// Unknown role names match rules literally.
func SubjectForRole(role *string, isLeadership bool, hospitalID *int64) Subject {
	if role == nil || *role == "" {
		return SubjectForLevel(LevelGuest, nil)
	}
	switch RoleLevel(*role) {
	case LevelHospitalStaff:
		if isLeadership {
			return SubjectForLevel(LevelHospitalLeadership, hospitalID)
		}
		return SubjectForLevel(LevelHospitalStaff, hospitalID)
	case LevelHospitalLeadership, LevelAdmin, LevelConsultant, LevelGuest:
		return SubjectForLevel(RoleLevel(*role), hospitalID)
	}
	return SubjectForRoleName(*role, isLeadership, hospitalID)
}

// SubjectForRoleName matches an arbitrary role name literally, adding the
// leadership key when requested
func SubjectForRoleName(name string, isLeadership bool, hospitalID *int64) Subject {
	keys := []string{name}
	if isLeadership && name != string(LevelHospitalLeadership) {
		keys = append(keys, string(LevelHospitalLeadership))
	}
	return Subject{Keys: keys, HospitalID: hospitalID}
}

// Restrictions lists the surfaces a subject must not reach
type Restrictions struct {
	RestrictedPages    []string          `json:"restricted_pages"`
	RestrictedFeatures []string          `json:"restricted_features"`
	RestrictedAPIs     []string          `json:"restricted_apis"`
	Messages           map[string]string `json:"messages,omitempty"`
}

// IsRestricted reports whether key of type t is restricted
func (r Restrictions) IsRestricted(t ResourceType, key string) bool {
	var list []string
	switch t {
	case ResourceTypePage:
		list = r.RestrictedPages
	case ResourceTypeFeature:
		list = r.RestrictedFeatures
	case ResourceTypeAPI:
		list = r.RestrictedAPIs
	}
	for _, k := range list {
		if k == key {
			return true
		}
	}
	return false
}

// UserView is the derived role and project scope of a user
type UserView struct {
	UserID             int64     `json:"user_id"`
	Role               string    `json:"role"`
	Level              RoleLevel `json:"role_level"`
	IsLeadership       bool      `json:"is_leadership"`
	HospitalID         *int64    `json:"hospital_id,omitempty"`
	AssignedProjectIDs []int64   `json:"assigned_project_ids"`
	// AllProjects is set for admins, who are not limited to assigned projects
	AllProjects bool `json:"all_projects"`
}

// Subject returns the rule-evaluation subject for the view
func (v *UserView) Subject() Subject {
	return SubjectForLevel(v.Level, v.HospitalID)
}

// CanAccessProject reports whether the view covers projectID
func (v *UserView) CanAccessProject(projectID int64) bool {
	if v.AllProjects {
		return true
	}
	for _, id := range v.AssignedProjectIDs {
		if id == projectID {
			return true
		}
	}
	return false
}

// CreateRuleRequest is the input for a new access rule
type CreateRuleRequest struct {
	ResourceType       ResourceType `json:"resource_type" validate:"required,oneof=page api feature"`
	ResourceKey        string       `json:"resource_key" validate:"required,max=200,resourcekey"`
	Description        string       `json:"description" validate:"max=1000"`
	AllowedRoles       []string     `json:"allowed_roles" validate:"dive,rolename"`
	DeniedRoles        []string     `json:"denied_roles" validate:"dive,rolename"`
	RestrictionMessage string       `json:"restriction_message" validate:"max=500"`
	HospitalID         *int64       `json:"hospital_id" validate:"omitempty,gt=0"`
	IsActive           *bool        `json:"is_active"`
}

// UpdateRuleRequest is a partial update; nil fields are left unchanged
type UpdateRuleRequest struct {
	Description        *string   `json:"description" validate:"omitempty,max=1000"`
	AllowedRoles       *[]string `json:"allowed_roles"`
	DeniedRoles        *[]string `json:"denied_roles"`
	RestrictionMessage *string   `json:"restriction_message" validate:"omitempty,max=500"`
	IsActive           *bool     `json:"is_active"`
}
