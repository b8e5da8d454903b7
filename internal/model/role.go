package model

import (
	"fmt"
	"strings"
)

// Role is the closed set of principal kinds known to the system.  Every
// decision that depends on the role switches over all three values so a new
// role cannot be added without the compiler pointing at each place.
type Role string

const (
	RoleUniversity Role = "University" // issues and manually verifies certificates
	RoleStudent    Role = "Student"    // retrieves their own certificate
	RoleCompany    Role = "Company"    // verifies certificates presented by candidates
)

// Roles lists every valid role in a stable order.
var Roles = []Role{RoleUniversity, RoleStudent, RoleCompany}

// ParseRole converts a client supplied role name into a Role.  Matching is
// case-insensitive; anything outside the closed set is rejected.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "university":
		return RoleUniversity, nil
	case "student":
		return RoleStudent, nil
	case "company":
		return RoleCompany, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// SelfRegistrable reports whether accounts with this role may be created
// through public registration.  University accounts are provisioned
// out-of-band.
func (r Role) SelfRegistrable() bool {
	switch r {
	case RoleUniversity:
		return false
	case RoleStudent, RoleCompany:
		return true
	}
	return false
}

// LandingPath is the client route a principal is sent to after login.
func (r Role) LandingPath() string {
	switch r {
	case RoleUniversity:
		return "/admin"
	case RoleStudent:
		return "/student"
	case RoleCompany:
		return "/company"
	}
	return "/"
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

func (r Role) String() string { return string(r) }
