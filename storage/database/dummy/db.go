package dummydb

import (
	"sync"

	"github.com/trezcool/absensi/core"
	"github.com/trezcool/absensi/core/attendance"
	"github.com/trezcool/absensi/core/roster"
)

type (
	// DB is an in-memory store used by tests and local demos.
	// A single lock guards all tables so joins see a consistent state.
	DB struct {
		sync.RWMutex
		classes  map[int]roster.ClassRoom
		students map[int]roster.Student
		records  map[recordKey]attendance.Record

		classSeq, studentSeq, recordSeq int
	}

	// recordKey mirrors the UNIQUE (student_id, date) constraint.
	recordKey struct {
		studentID int
		date      core.Date
	}
)

func Open() (*DB, error) {
	db := &DB{
		classes:  make(map[int]roster.ClassRoom),
		students: make(map[int]roster.Student),
		records:  make(map[recordKey]attendance.Record),
	}
	return db, nil
}

// classSize returns the number of students enrolled in classID. Caller holds the lock.
func (db *DB) classSize(classID int) int {
	var n int
	for _, s := range db.students {
		if s.ClassID != nil && *s.ClassID == classID {
			n++
		}
	}
	return n
}

func (db *DB) className(classID *int) string {
	if classID == nil {
		return ""
	}
	return db.classes[*classID].Name
}

// activeIn reports whether s is active and enrolled in classID (any class when nil).
func activeIn(s roster.Student, classID *int) bool {
	return s.IsActive() && (classID == nil || (s.ClassID != nil && *s.ClassID == *classID))
}

func (db *DB) countActive(classID *int) int {
	var n int
	for _, s := range db.students {
		if activeIn(s, classID) {
			n++
		}
	}
	return n
}
