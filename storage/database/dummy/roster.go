package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/absensi/core/roster"
)

type rosterRepository struct {
	db *DB
}

var _ roster.Repository = (*rosterRepository)(nil) // interface compliance check

func NewRosterRepository(db *DB) roster.Repository {
	return &rosterRepository{db: db}
}

func (repo *rosterRepository) classNameTaken(name string, excludedID int) bool {
	for _, c := range repo.db.classes {
		if c.ID != excludedID && strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func (repo *rosterRepository) CreateClassRoom(_ context.Context, class roster.ClassRoom) (roster.ClassRoom, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if repo.classNameTaken(class.Name, 0) {
		return roster.ClassRoom{}, roster.ErrClassRoomExists
	}
	repo.db.classSeq++
	class.ID = repo.db.classSeq
	repo.db.classes[class.ID] = class
	return class, nil
}

func (repo *rosterRepository) UpdateClassRoom(_ context.Context, class roster.ClassRoom) (roster.ClassRoom, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.classes[class.ID]
	if !ok {
		return roster.ClassRoom{}, roster.ErrClassRoomNotFound
	}
	if repo.classNameTaken(class.Name, class.ID) {
		return roster.ClassRoom{}, roster.ErrClassRoomExists
	}
	orig.Name = class.Name
	orig.Grade = class.Grade
	orig.Track = class.Track
	orig.HomeroomTeacher = class.HomeroomTeacher
	orig.Capacity = class.Capacity
	orig.UpdatedAt = class.UpdatedAt
	repo.db.classes[class.ID] = orig
	return orig, nil
}

func (repo *rosterRepository) GetClassRoom(_ context.Context, id int) (roster.ClassRoomView, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	class, ok := repo.db.classes[id]
	if !ok {
		return roster.ClassRoomView{}, roster.ErrClassRoomNotFound
	}
	return roster.NewClassRoomView(class, repo.db.classSize(id)), nil
}

func (repo *rosterRepository) QueryClassRooms(_ context.Context, filter roster.ClassRoomFilter) ([]roster.ClassRoomView, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	search := strings.ToLower(filter.Search)
	classes := make([]roster.ClassRoomView, 0, len(repo.db.classes))
	for _, c := range repo.db.classes {
		if search != "" && !strings.Contains(strings.ToLower(c.Name), search) &&
			!strings.Contains(strings.ToLower(c.HomeroomTeacher), search) {
			continue
		}
		if filter.Grade != "" && c.Grade != filter.Grade {
			continue
		}
		classes = append(classes, roster.NewClassRoomView(c, repo.db.classSize(c.ID)))
	}
	sort.Slice(classes, func(i, j int) bool {
		if classes[i].Name != classes[j].Name {
			return classes[i].Name < classes[j].Name
		}
		return classes[i].ID < classes[j].ID
	})
	return classes, nil
}

func (repo *rosterRepository) DeleteClassRoom(_ context.Context, id int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.classes[id]; !ok {
		return roster.ErrClassRoomNotFound
	}
	if repo.db.classSize(id) > 0 {
		return roster.ErrClassRoomNotEmpty
	}
	delete(repo.db.classes, id)
	return nil
}

func (repo *rosterRepository) CheckStudentUniqueness(_ context.Context, nis string, nisn *string, excludedID int) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, s := range repo.db.students {
		if s.ID == excludedID {
			continue
		}
		if s.NIS == nis {
			return roster.ErrNISExists
		}
		if nisn != nil && s.NISN != nil && *s.NISN == *nisn {
			return roster.ErrNISNExists
		}
	}
	return nil
}

func (repo *rosterRepository) checkClass(classID *int) error {
	if classID == nil {
		return nil
	}
	if _, ok := repo.db.classes[*classID]; !ok {
		return roster.ErrClassRoomNotFound
	}
	return nil
}

func (repo *rosterRepository) CreateStudent(_ context.Context, student roster.Student) (roster.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, s := range repo.db.students {
		if s.NIS == student.NIS {
			return roster.Student{}, roster.ErrNISExists
		}
	}
	if err := repo.checkClass(student.ClassID); err != nil {
		return roster.Student{}, err
	}
	repo.db.studentSeq++
	student.ID = repo.db.studentSeq
	repo.db.students[student.ID] = student
	return student, nil
}

func (repo *rosterRepository) UpdateStudent(_ context.Context, student roster.Student) (roster.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.students[student.ID]
	if !ok {
		return roster.Student{}, roster.ErrStudentNotFound
	}
	if err := repo.checkClass(student.ClassID); err != nil {
		return roster.Student{}, err
	}
	orig.NIS = student.NIS
	orig.NISN = student.NISN
	orig.Name = student.Name
	orig.ClassID = student.ClassID
	orig.Gender = student.Gender
	orig.BirthDate = student.BirthDate
	orig.Address = student.Address
	orig.Phone = student.Phone
	orig.ParentName = student.ParentName
	orig.ParentPhone = student.ParentPhone
	orig.UpdatedAt = student.UpdatedAt
	repo.db.students[student.ID] = orig
	return orig, nil
}

func (repo *rosterRepository) GetStudent(_ context.Context, id int) (roster.StudentView, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	s, ok := repo.db.students[id]
	if !ok {
		return roster.StudentView{}, roster.ErrStudentNotFound
	}
	return roster.StudentView{Student: s, ClassName: repo.db.className(s.ClassID)}, nil
}

func (repo *rosterRepository) FilterStudents(_ context.Context, filter roster.StudentFilter) ([]roster.StudentView, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	search := strings.ToLower(filter.Search)
	var students []roster.StudentView
	for _, s := range repo.db.students {
		if search != "" && !strings.Contains(strings.ToLower(s.Name), search) && !strings.Contains(strings.ToLower(s.NIS), search) {
			continue
		}
		if filter.ClassID > 0 && (s.ClassID == nil || *s.ClassID != filter.ClassID) {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		students = append(students, roster.StudentView{Student: s, ClassName: repo.db.className(s.ClassID)})
	}
	sort.Slice(students, func(i, j int) bool {
		if students[i].Name != students[j].Name {
			return students[i].Name < students[j].Name
		}
		return students[i].ID < students[j].ID
	})

	total := len(students)
	start := filter.Offset()
	if start > total {
		start = total
	}
	end := start + filter.Limit()
	if end > total {
		end = total
	}
	page := make([]roster.StudentView, 0, end-start)
	page = append(page, students[start:end]...)
	return page, total, nil
}

func (repo *rosterRepository) SetStudentStatus(_ context.Context, id int, status roster.StudentStatus) (roster.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	s, ok := repo.db.students[id]
	if !ok {
		return roster.Student{}, roster.ErrStudentNotFound
	}
	s.Status = status
	repo.db.students[id] = s
	return s, nil
}

func (repo *rosterRepository) SetStudentPhoto(_ context.Context, id int, ref string) (roster.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	s, ok := repo.db.students[id]
	if !ok {
		return roster.Student{}, roster.ErrStudentNotFound
	}
	s.PhotoRef = ref
	repo.db.students[id] = s
	return s, nil
}

func (repo *rosterRepository) DeleteStudent(_ context.Context, id int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.students[id]; !ok {
		return roster.ErrStudentNotFound
	}
	for key := range repo.db.records {
		if key.studentID == id {
			return roster.ErrStudentHasAttendance
		}
	}
	delete(repo.db.students, id)
	return nil
}

func (repo *rosterRepository) StudentHasAttendance(_ context.Context, id int) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for key := range repo.db.records {
		if key.studentID == id {
			return true, nil
		}
	}
	return false, nil
}

func (repo *rosterRepository) CountActiveStudents(_ context.Context, classID *int) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.db.countActive(classID), nil
}
