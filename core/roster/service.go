package roster

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/absensi/core"
)

var (
	// errors
	ErrStudentNotFound   = errors.New("student not found")
	ErrClassRoomNotFound = errors.New("class not found")
	ErrClassRoomNotEmpty = errors.New("class still has enrolled students")
	ErrNISExists         = errors.New("a student with this NIS already exists")
	ErrNISNExists        = errors.New("a student with this NISN already exists")
	ErrClassRoomExists   = errors.New("a class with this name already exists")

	ErrStudentHasAttendance = errors.New("student has attendance records")
)

type (
	Repository interface {
		CreateClassRoom(ctx context.Context, class ClassRoom) (ClassRoom, error)
		UpdateClassRoom(ctx context.Context, class ClassRoom) (ClassRoom, error)
		GetClassRoom(ctx context.Context, id int) (ClassRoomView, error)
		QueryClassRooms(ctx context.Context, filter ClassRoomFilter) ([]ClassRoomView, error)
		// DeleteClassRoom fails with ErrClassRoomNotEmpty while students are enrolled.
		DeleteClassRoom(ctx context.Context, id int) error

		// CheckStudentUniqueness returns ErrNISExists or ErrNISNExists when taken by another Student than excludedID.
		CheckStudentUniqueness(ctx context.Context, nis string, nisn *string, excludedID int) error
		CreateStudent(ctx context.Context, student Student) (Student, error)
		UpdateStudent(ctx context.Context, student Student) (Student, error)
		GetStudent(ctx context.Context, id int) (StudentView, error)
		// FilterStudents applies AND operation on available StudentFilter fields and returns the total before paging.
		FilterStudents(ctx context.Context, filter StudentFilter) ([]StudentView, int, error)
		SetStudentStatus(ctx context.Context, id int, status StudentStatus) (Student, error)
		SetStudentPhoto(ctx context.Context, id int, ref string) (Student, error)
		// DeleteStudent fails with ErrStudentHasAttendance while attendance records reference the Student.
		DeleteStudent(ctx context.Context, id int) error
		StudentHasAttendance(ctx context.Context, id int) (bool, error)
		CountActiveStudents(ctx context.Context, classID *int) (int, error)
	}

	// PhotoProcessor normalizes uploaded photos before they are stored.
	PhotoProcessor interface {
		Process(r io.Reader) (io.Reader, string, error) // returns content and content type
	}

	Service struct {
		repo   Repository
		files  core.FileStorage
		photos PhotoProcessor
		clock  core.Clock
		logger core.Logger
	}
)

func NewService(repo Repository, files core.FileStorage, photos PhotoProcessor, clock core.Clock, logger core.Logger) *Service {
	return &Service{repo: repo, files: files, photos: photos, clock: clock, logger: logger}
}

func (svc *Service) checkStudentInput(ctx context.Context, si *StudentInput, excludedID ...int) error {
	var excl int
	if len(excludedID) > 0 {
		excl = excludedID[0]
	}
	if err := svc.repo.CheckStudentUniqueness(ctx, si.NIS, si.NISN, excl); err != nil {
		switch err {
		case ErrNISExists:
			return core.NewFieldError("nis", err)
		case ErrNISNExists:
			return core.NewFieldError("nisn", err)
		default:
			return pkgerrors.Wrap(err, "checking student uniqueness")
		}
	}
	if si.ClassID != nil {
		if _, err := svc.repo.GetClassRoom(ctx, *si.ClassID); err != nil {
			if err == ErrClassRoomNotFound {
				return core.NewFieldError("class_id", err)
			}
			return pkgerrors.Wrap(err, "finding class")
		}
	}
	return nil
}

// ClassRooms

func (svc *Service) CreateClassRoom(ctx context.Context, ci ClassRoomInput) (ClassRoom, error) {
	now := svc.clock.Now()
	class, err := svc.repo.CreateClassRoom(ctx, ClassRoom{
		Name:            ci.Name,
		Grade:           ci.Grade,
		Track:           ci.Track,
		HomeroomTeacher: ci.HomeroomTeacher,
		Capacity:        ci.Capacity,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err == ErrClassRoomExists {
		return ClassRoom{}, core.NewFieldError("name", err)
	}
	return class, err
}

func (svc *Service) UpdateClassRoom(ctx context.Context, id int, ci ClassRoomInput) (ClassRoom, error) {
	class, err := svc.repo.UpdateClassRoom(ctx, ClassRoom{
		ID:              id,
		Name:            ci.Name,
		Grade:           ci.Grade,
		Track:           ci.Track,
		HomeroomTeacher: ci.HomeroomTeacher,
		Capacity:        ci.Capacity,
		UpdatedAt:       svc.clock.Now(),
	})
	if err == ErrClassRoomExists {
		return ClassRoom{}, core.NewFieldError("name", err)
	}
	return class, err
}

func (svc *Service) GetClassRoom(ctx context.Context, id int) (ClassRoomView, error) {
	return svc.repo.GetClassRoom(ctx, id)
}

func (svc *Service) QueryClassRooms(ctx context.Context, filter ClassRoomFilter) ([]ClassRoomView, error) {
	filter.Clean()
	return svc.repo.QueryClassRooms(ctx, filter)
}

func (svc *Service) DeleteClassRoom(ctx context.Context, id int) error {
	return svc.repo.DeleteClassRoom(ctx, id)
}

// Students

func (svc *Service) CreateStudent(ctx context.Context, si StudentInput) (Student, error) {
	now := svc.clock.Now()
	return svc.repo.CreateStudent(ctx, Student{
		NIS:         si.NIS,
		NISN:        si.NISN,
		Name:        si.Name,
		ClassID:     si.ClassID,
		Gender:      si.Gender,
		BirthDate:   si.BirthDate,
		Address:     si.Address,
		Phone:       si.Phone,
		ParentName:  si.ParentName,
		ParentPhone: si.ParentPhone,
		Status:      StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// UpdateStudent replaces the Student's details. Status and photo have dedicated operations.
func (svc *Service) UpdateStudent(ctx context.Context, id int, si StudentInput) (Student, error) {
	return svc.repo.UpdateStudent(ctx, Student{
		ID:          id,
		NIS:         si.NIS,
		NISN:        si.NISN,
		Name:        si.Name,
		ClassID:     si.ClassID,
		Gender:      si.Gender,
		BirthDate:   si.BirthDate,
		Address:     si.Address,
		Phone:       si.Phone,
		ParentName:  si.ParentName,
		ParentPhone: si.ParentPhone,
		UpdatedAt:   svc.clock.Now(),
	})
}

func (svc *Service) GetStudent(ctx context.Context, id int) (StudentView, error) {
	return svc.repo.GetStudent(ctx, id)
}

func (svc *Service) FilterStudents(ctx context.Context, filter StudentFilter) ([]StudentView, core.PageInfo, error) {
	filter.Clean()
	students, total, err := svc.repo.FilterStudents(ctx, filter)
	if err != nil {
		return nil, core.PageInfo{}, err
	}
	return students, core.NewPageInfo(filter.Pagination, total), nil
}

// ToggleStatus flips a Student between active and inactive.
func (svc *Service) ToggleStatus(ctx context.Context, id int) (Student, error) {
	student, err := svc.repo.GetStudent(ctx, id)
	if err != nil {
		return Student{}, err
	}
	next := StatusInactive
	if !student.IsActive() {
		next = StatusActive
	}
	return svc.repo.SetStudentStatus(ctx, id, next)
}

// DeleteStudent removes a Student without attendance history.
// Students with history are deactivated instead and deactivated is true.
func (svc *Service) DeleteStudent(ctx context.Context, id int) (deactivated bool, err error) {
	student, err := svc.repo.GetStudent(ctx, id)
	if err != nil {
		return false, err
	}
	hasHistory, err := svc.repo.StudentHasAttendance(ctx, id)
	if err != nil {
		return false, pkgerrors.Wrap(err, "checking attendance history")
	}
	if !hasHistory {
		err = svc.repo.DeleteStudent(ctx, id)
	}
	if hasHistory || err == ErrStudentHasAttendance {
		if _, err = svc.repo.SetStudentStatus(ctx, id, StatusInactive); err != nil {
			return false, pkgerrors.Wrap(err, "deactivating student")
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if student.PhotoRef != "" {
		if err = svc.files.Delete(ctx, student.PhotoRef); err != nil {
			svc.logger.Warn(fmt.Sprintf("roster: releasing photo %s of deleted student %d", student.PhotoRef, id), err)
		}
	}
	return false, nil
}

// ReplacePhoto normalizes and stores a new photo for the Student.
// The previous photo is released only after the new reference is saved.
func (svc *Service) ReplacePhoto(ctx context.Context, id int, r io.Reader) (Student, error) {
	student, err := svc.repo.GetStudent(ctx, id)
	if err != nil {
		return Student{}, err
	}

	content, contentType, err := svc.photos.Process(r)
	if err != nil {
		return Student{}, core.NewFieldError("photo", err)
	}

	var updated Student
	key := fmt.Sprintf("students/%d/%s.jpg", id, uuid.New().String())
	err = core.ReplaceBlob(ctx, svc.files, student.PhotoRef, key, content, contentType, func(key string) error {
		var sErr error
		updated, sErr = svc.repo.SetStudentPhoto(ctx, id, key)
		return sErr
	})
	if err != nil {
		if updated.ID == 0 {
			return Student{}, err
		}
		svc.logger.Warn(fmt.Sprintf("roster: replaced photo of student %d not released", id), err)
	}
	return updated, nil
}

func (svc *Service) PhotoURL(ref string) string {
	if ref == "" {
		return ""
	}
	return svc.files.URL(ref)
}

func (svc *Service) CountActiveStudents(ctx context.Context, classID *int) (int, error) {
	return svc.repo.CountActiveStudents(ctx, classID)
}
