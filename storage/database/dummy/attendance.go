package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/absensi/core"
	"github.com/trezcool/absensi/core/attendance"
)

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) CheckIn(_ context.Context, rec attendance.Record) (attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.students[rec.StudentID]; !ok {
		return attendance.Record{}, attendance.ErrUnknownStudent
	}
	key := recordKey{studentID: rec.StudentID, date: rec.Date}
	existing, ok := repo.db.records[key]
	if !ok {
		repo.db.recordSeq++
		rec.ID = repo.db.recordSeq
		repo.db.records[key] = rec
		return rec, nil
	}
	if existing.CheckedIn() {
		return attendance.Record{}, attendance.ErrAlreadyCheckedIn
	}

	// fill the record created by a manual status
	existing.CheckInAt = rec.CheckInAt
	existing.Status = attendance.StatusPresent
	existing.CheckInLocation = rec.CheckInLocation
	existing.CheckInPhoto = rec.CheckInPhoto
	existing.UpdatedAt = rec.UpdatedAt
	repo.db.records[key] = existing
	return existing, nil
}

func (repo *attendanceRepository) CheckOut(
	_ context.Context,
	studentID int,
	date core.Date,
	at time.Time,
	in attendance.CheckInput,
) (attendance.Record, bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := recordKey{studentID: studentID, date: date}
	rec, ok := repo.db.records[key]
	if !ok || !rec.CheckedIn() || rec.CheckedOut() || !at.After(*rec.CheckInAt) {
		return attendance.Record{}, false, nil
	}
	rec.CheckOutAt = &at
	rec.CheckOutLocation = in.Location
	rec.CheckOutPhoto = in.PhotoRef
	rec.UpdatedAt = at
	repo.db.records[key] = rec
	return rec, true, nil
}

func (repo *attendanceRepository) Get(_ context.Context, studentID int, date core.Date) (attendance.Record, bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	rec, ok := repo.db.records[recordKey{studentID: studentID, date: date}]
	return rec, ok, nil
}

func (repo *attendanceRepository) SetStatus(
	_ context.Context,
	studentID int,
	date core.Date,
	status attendance.Status,
	note string,
	at time.Time,
) (attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.students[studentID]; !ok {
		return attendance.Record{}, attendance.ErrUnknownStudent
	}
	key := recordKey{studentID: studentID, date: date}
	rec, ok := repo.db.records[key]
	if !ok {
		repo.db.recordSeq++
		rec = attendance.Record{ID: repo.db.recordSeq, StudentID: studentID, Date: date, CreatedAt: at}
	}
	rec.Status = status
	rec.Note = note
	rec.UpdatedAt = at
	repo.db.records[key] = rec
	return rec, nil
}

func (repo *attendanceRepository) view(rec attendance.Record) attendance.RecordView {
	s := repo.db.students[rec.StudentID]
	return attendance.RecordView{
		Record:      rec,
		NIS:         s.NIS,
		StudentName: s.Name,
		ClassID:     s.ClassID,
		ClassName:   repo.db.className(s.ClassID),
	}
}

func (repo *attendanceRepository) Query(_ context.Context, filter attendance.QueryFilter) ([]attendance.RecordView, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	search := strings.ToLower(filter.Search)
	var views []attendance.RecordView
	for _, rec := range repo.db.records {
		if !filter.MatchesDate(rec.Date) {
			continue
		}
		if filter.StudentID > 0 && rec.StudentID != filter.StudentID {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		v := repo.view(rec)
		if filter.ClassID > 0 && (v.ClassID == nil || *v.ClassID != filter.ClassID) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(v.StudentName), search) && !strings.Contains(strings.ToLower(v.NIS), search) {
			continue
		}
		views = append(views, v)
	}
	sortViews(views, filter.Orderings)

	total := len(views)
	start := filter.Offset()
	if start > total {
		start = total
	}
	end := start + filter.Limit()
	if end > total {
		end = total
	}
	page := make([]attendance.RecordView, 0, end-start)
	page = append(page, views[start:end]...)
	return page, total, nil
}

// sortViews orders by the first known ordering field, newest date first by default.
func sortViews(views []attendance.RecordView, orderings []core.DBOrdering) {
	less := func(a, b attendance.RecordView) (bool, bool) { // (less, decided)
		if a.Date != b.Date {
			return a.Date.After(b.Date), true
		}
		return false, false
	}
	for _, ord := range orderings {
		asc := ord.Ascending
		var cmp func(a, b attendance.RecordView) int
		switch ord.Field {
		case "date":
			cmp = func(a, b attendance.RecordView) int { return b.Date.DaysUntil(a.Date) }
		case "name":
			cmp = func(a, b attendance.RecordView) int { return strings.Compare(a.StudentName, b.StudentName) }
		case "nis":
			cmp = func(a, b attendance.RecordView) int { return strings.Compare(a.NIS, b.NIS) }
		case "status":
			cmp = func(a, b attendance.RecordView) int { return strings.Compare(string(a.Status), string(b.Status)) }
		default:
			continue
		}
		less = func(a, b attendance.RecordView) (bool, bool) {
			c := cmp(a, b)
			if c == 0 {
				return false, false
			}
			if asc {
				return c < 0, true
			}
			return c > 0, true
		}
		break
	}
	sort.SliceStable(views, func(i, j int) bool {
		if l, ok := less(views[i], views[j]); ok {
			return l
		}
		return views[i].ID > views[j].ID
	})
}

func (repo *attendanceRepository) InsertAbsences(_ context.Context, date core.Date, enrolledBefore, at time.Time) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var n int
	for _, s := range repo.db.students {
		if !s.IsActive() || !s.CreatedAt.Before(enrolledBefore) {
			continue
		}
		key := recordKey{studentID: s.ID, date: date}
		if _, ok := repo.db.records[key]; ok {
			continue
		}
		repo.db.recordSeq++
		repo.db.records[key] = attendance.Record{
			ID:        repo.db.recordSeq,
			StudentID: s.ID,
			Date:      date,
			Status:    attendance.StatusAbsent,
			CreatedAt: at,
			UpdatedAt: at,
		}
		n++
	}
	return n, nil
}

func (repo *attendanceRepository) CountByDay(_ context.Context, from, to core.Date, classID *int) (map[core.Date]attendance.StatusCounts, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	counts := make(map[core.Date]attendance.StatusCounts)
	for _, rec := range repo.db.records {
		if rec.Date.Before(from) || rec.Date.After(to) {
			continue
		}
		if !activeIn(repo.db.students[rec.StudentID], classID) {
			continue
		}
		c := counts[rec.Date]
		c.Add(rec.Status, 1)
		counts[rec.Date] = c
	}
	return counts, nil
}

func (repo *attendanceRepository) CountForStudent(_ context.Context, studentID int, from, to core.Date) (attendance.StatusCounts, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var counts attendance.StatusCounts
	for key, rec := range repo.db.records {
		if key.studentID != studentID || rec.Date.Before(from) || rec.Date.After(to) {
			continue
		}
		counts.Add(rec.Status, 1)
	}
	return counts, nil
}

func (repo *attendanceRepository) CountActiveStudents(_ context.Context, classID *int) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.db.countActive(classID), nil
}
