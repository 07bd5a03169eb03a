package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/mail"
	"sync"
	"testing"
	"time"

	"github.com/trezcool/absensi/core"
	"github.com/trezcool/absensi/core/roster"
)

// Jakarta is the school timezone used by tests (UTC+7, no DST).
var Jakarta = time.FixedZone("WIB", 7*60*60)

// Clock is a settable core.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock { return &Clock{now: now.UTC()} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// At returns the instant of date at hh:mm school time.
func At(date core.Date, hh, mm int) time.Time {
	return time.Date(date.Year, date.Month, date.Day, hh, mm, 0, 0, Jakarta)
}

func Config() *core.Config {
	return &core.Config{
		Env:              "TEST",
		TestMode:         true,
		AppName:          "Absensi",
		SecretKey:        "test-secret",
		Timezone:         "Asia/Jakarta",
		Location:         Jakarta,
		DefaultFromEmail: mail.Address{Name: "Absensi", Address: "noreply@test.id"},
		Server: core.ServerConfig{
			Host:               "localhost",
			JWTExpirationDelta: time.Hour,
		},
		Storage: core.StorageConfig{
			Driver:            "local",
			PublicBaseURL:     "/media",
			PhotoMaxDimension: 64,
			MaxUploadSize:     1 << 20,
		},
		Attendance: core.AttendanceConfig{
			OpTimeout:    5 * time.Second,
			TrendMaxDays: 90,
		},
	}
}

// Logger is a core.Logger remembering what it was asked to log.
type Logger struct {
	mu      sync.Mutex
	Entries []string
}

func (l *Logger) log(level, msg string) {
	l.mu.Lock()
	l.Entries = append(l.Entries, level+": "+msg)
	l.mu.Unlock()
}

func (l *Logger) Debug(msg string, _ ...interface{}) { l.log("DEBUG", msg) }
func (l *Logger) Info(msg string, _ ...interface{})  { l.log("INFO", msg) }
func (l *Logger) Warn(msg string, _ ...interface{})  { l.log("WARN", msg) }
func (l *Logger) Error(msg string, _ ...interface{}) { l.log("ERROR", msg) }
func (l *Logger) Fatal(msg string, _ ...interface{}) { l.log("FATAL", msg) }

func (l *Logger) Count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int
	for _, e := range l.Entries {
		if len(e) > len(level) && e[:len(level)] == level {
			n++
		}
	}
	return n
}

// Storage is an in-memory core.FileStorage.
type Storage struct {
	mu    sync.Mutex
	Blobs map[string][]byte
}

func NewStorage() *Storage { return &Storage{Blobs: make(map[string][]byte)} }

func (s *Storage) Put(_ context.Context, key string, r io.Reader, _ string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	s.mu.Lock()
	s.Blobs[key] = buf.Bytes()
	s.mu.Unlock()
	return nil
}

func (s *Storage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.Blobs, key)
	s.mu.Unlock()
	return nil
}

func (s *Storage) URL(key string) string { return "/media/" + key }

func (s *Storage) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.Blobs[key]
	return ok
}

// Photos passes photos through unchanged.
type Photos struct{}

func (Photos) Process(r io.Reader) (io.Reader, string, error) { return r, "image/jpeg", nil }

// Enrolled is when fixture classes and students are created.
var Enrolled = time.Date(2023, time.July, 17, 0, 0, 0, 0, time.UTC)

func CreateClassRoom(t *testing.T, repo roster.Repository, name string) roster.ClassRoom {
	t.Helper()
	now := Enrolled
	class, err := repo.CreateClassRoom(context.Background(), roster.ClassRoom{
		Name:      name,
		Grade:     "X",
		Capacity:  30,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateClassRoom() failed: %v", err)
	}
	return class
}

func CreateStudent(t *testing.T, repo roster.Repository, nis, name string, class *roster.ClassRoom, active bool) roster.Student {
	t.Helper()
	now := Enrolled
	status := roster.StatusActive
	if !active {
		status = roster.StatusInactive
	}
	student := roster.Student{
		NIS:       nis,
		Name:      name,
		Gender:    roster.GenderMale,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if class != nil {
		id := class.ID
		student.ClassID = &id
	}
	student, err := repo.CreateStudent(context.Background(), student)
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return student
}

// CreateStudents creates n active students named "Student <i>".
func CreateStudents(t *testing.T, repo roster.Repository, n int, class *roster.ClassRoom) []roster.Student {
	t.Helper()
	students := make([]roster.Student, 0, n)
	for i := 1; i <= n; i++ {
		prefix := "0"
		if class != nil {
			prefix = fmt.Sprint(class.ID)
		}
		students = append(students, CreateStudent(t, repo, fmt.Sprintf("%s%04d", prefix, i), fmt.Sprintf("Student %d", i), class, true))
	}
	return students
}
