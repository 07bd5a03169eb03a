package roster

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/absensi/core"
)

type Gender string

const (
	GenderMale   Gender = "L" // laki-laki
	GenderFemale Gender = "P" // perempuan
)

type StudentStatus string

const (
	StatusActive   StudentStatus = "active"
	StatusInactive StudentStatus = "inactive"
)

func (s StudentStatus) Valid() bool { return s == StatusActive || s == StatusInactive }

const defaultCapacity = 30

type ClassRoom struct {
	ID              int       `json:"id"`
	Name            string    `json:"name"`
	Grade           string    `json:"grade"`
	Track           string    `json:"track"`
	HomeroomTeacher string    `json:"homeroom_teacher"`
	Capacity        int       `json:"capacity"`
	CreatedAt       time.Time `json:"created_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at"` // UTC
}

// ClassRoomView is a ClassRoom with its enrolment figures.
type ClassRoomView struct {
	ClassRoom
	StudentCount int `json:"student_count"`
	SeatsLeft    int `json:"seats_left"`
}

func NewClassRoomView(c ClassRoom, studentCount int) ClassRoomView {
	left := c.Capacity - studentCount
	if left < 0 {
		left = 0
	}
	return ClassRoomView{ClassRoom: c, StudentCount: studentCount, SeatsLeft: left}
}

type Student struct {
	ID          int           `json:"id"`
	NIS         string        `json:"nis"`
	NISN        *string       `json:"nisn"`
	Name        string        `json:"name"`
	ClassID     *int          `json:"class_id"`
	Gender      Gender        `json:"gender"`
	BirthDate   core.Date     `json:"birth_date"`
	Address     string        `json:"address"`
	Phone       string        `json:"phone"`
	ParentName  string        `json:"parent_name"`
	ParentPhone string        `json:"parent_phone"`
	PhotoRef    string        `json:"photo_ref"`
	Status      StudentStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"` // UTC
	UpdatedAt   time.Time     `json:"updated_at"` // UTC
}

func (s Student) IsActive() bool { return s.Status == StatusActive }

// StudentView is a Student joined with its class name.
type StudentView struct {
	Student
	ClassName string `json:"class_name"`
}

// ClassRoomInput contains information needed to create or replace a ClassRoom.
type ClassRoomInput struct {
	Name            string `json:"name" validate:"required,notblank,max=50"`
	Grade           string `json:"grade" validate:"max=10"`
	Track           string `json:"track" validate:"max=50"`
	HomeroomTeacher string `json:"homeroom_teacher" validate:"max=100"`
	Capacity        int    `json:"capacity" validate:"omitempty,min=1,max=100"`
}

func (ci *ClassRoomInput) Validate(validate *validator.Validate) error {
	ci.Name = core.CleanString(ci.Name)
	ci.Grade = core.CleanString(ci.Grade)
	ci.Track = core.CleanString(ci.Track)
	ci.HomeroomTeacher = core.CleanString(ci.HomeroomTeacher)
	if ci.Capacity == 0 {
		ci.Capacity = defaultCapacity
	}
	return validate.Struct(ci)
}

// StudentInput contains information needed to create or replace a Student.
type StudentInput struct {
	NIS         string    `json:"nis" validate:"required,notblank,max=30"`
	NISN        *string   `json:"nisn" validate:"omitempty,max=30"`
	Name        string    `json:"name" validate:"required,notblank,max=100"`
	ClassID     *int      `json:"class_id" validate:"omitempty,min=1"`
	Gender      Gender    `json:"gender" validate:"omitempty,gender"`
	BirthDate   core.Date `json:"birth_date"`
	Address     string    `json:"address" validate:"max=255"`
	Phone       string    `json:"phone" validate:"max=20"`
	ParentName  string    `json:"parent_name" validate:"max=100"`
	ParentPhone string    `json:"parent_phone" validate:"max=20"`
}

// Validate cleans and validates the input, then checks NIS/NISN uniqueness and the class reference.
// excludedID is the Student being replaced, if any.
func (si *StudentInput) Validate(ctx context.Context, validate *validator.Validate, svc *Service, excludedID ...int) error {
	si.NIS = core.CleanString(si.NIS)
	si.NISN = core.CleanStringPtr(si.NISN)
	si.Name = core.CleanString(si.Name)
	si.Gender = Gender(strings.ToUpper(core.CleanString(string(si.Gender))))
	si.Address = core.CleanString(si.Address)
	si.Phone = core.CleanString(si.Phone)
	si.ParentName = core.CleanString(si.ParentName)
	si.ParentPhone = core.CleanString(si.ParentPhone)

	if err := validate.Struct(si); err != nil {
		return err
	}
	return svc.checkStudentInput(ctx, si, excludedID...)
}

type StudentFilter struct {
	Search  string        `query:"search"` // name or NIS
	ClassID int           `query:"class_id"`
	Status  StudentStatus `query:"status"`
	core.Pagination
}

func (sf *StudentFilter) Clean() {
	sf.Search = core.CleanString(sf.Search)
	if !sf.Status.Valid() {
		sf.Status = ""
	}
}

type ClassRoomFilter struct {
	Search string `query:"search"`
	Grade  string `query:"grade"`
}

func (cf *ClassRoomFilter) Clean() {
	cf.Search = core.CleanString(cf.Search)
	cf.Grade = core.CleanString(cf.Grade)
}
