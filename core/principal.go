package core

import "strconv"

// Principal is the authenticated caller as asserted by the session provider.
type Principal struct {
	Subject   string
	StudentID int // 0 for staff accounts
	IsAdmin   bool
}

func (p Principal) IsStudent() bool { return p.StudentID > 0 }

func (p Principal) String() string {
	if p.IsStudent() {
		return "student:" + strconv.Itoa(p.StudentID)
	}
	return "admin:" + p.Subject
}
