package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"edugame-service/internal/domain"
	"github.com/go-playground/validator/v10"
)

// StudentStore persists student accounts and their login state.
type StudentStore interface {
	Create(ctx context.Context, student domain.Student) error
	FindByEmail(ctx context.Context, email string) (domain.Student, error)
	Get(ctx context.Context, name string) (domain.Student, error)
	LoginState(ctx context.Context, name string) (domain.LoginState, error)
	// RecordLogin locks the student, computes the new streak from the stored state
	// and writes streak and last_login together. It returns the stored streak.
	RecordLogin(ctx context.Context, name string, now time.Time, next func(domain.LoginState) int) (int, error)
	// UpdateProfile overwrites college, place, district and state.
	UpdateProfile(ctx context.Context, name string, update domain.ProfileUpdate) error
}

// NextStreak computes the login streak after a login at now. Days are counted on the
// calendar of loc. A last login dated after now counts as the same day.
func NextStreak(lastLogin *time.Time, current int, now time.Time, loc *time.Location) int {
	if lastLogin == nil {
		return 1
	}
	switch diff := calendarDays(*lastLogin, now, loc); {
	case diff == 1:
		return current + 1
	case diff > 1:
		return 1
	default:
		if current < 0 {
			return 0
		}
		return current
	}
}

func calendarDays(from, to time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	fy, fm, fd := from.In(loc).Date()
	ty, tm, td := to.In(loc).Date()
	start := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	end := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}

// StudentService serves the student-facing progression reads.
type StudentService struct {
	students StudentStore
	agg      *Aggregator
	validate *validator.Validate
}

func NewStudentService(students StudentStore, agg *Aggregator) *StudentService {
	return &StudentService{students: students, agg: agg, validate: validator.New()}
}

// Streak returns the caller's current login streak.
func (s *StudentService) Streak(ctx context.Context, caller *domain.Identity) (int, error) {
	if !caller.IsStudent() {
		return 0, domain.ErrUnauthorized
	}
	state, err := s.students.LoginState(ctx, caller.Name)
	if err != nil {
		return 0, storeErr(err)
	}
	return state.Streak, nil
}

// Profile returns the caller's profile together with their aggregated stats.
func (s *StudentService) Profile(ctx context.Context, caller *domain.Identity) (domain.Profile, error) {
	if !caller.IsStudent() {
		return domain.Profile{}, domain.ErrUnauthorized
	}
	student, err := s.students.Get(ctx, caller.Name)
	if err != nil {
		return domain.Profile{}, storeErr(err)
	}
	stats, err := s.agg.StudentStats(ctx, caller.Name)
	if err != nil {
		return domain.Profile{}, err
	}
	return domain.Profile{
		Name:         student.Name,
		Email:        student.Email,
		College:      student.College,
		Place:        student.Place,
		District:     student.District,
		State:        student.State,
		StudentStats: stats,
	}, nil
}

// ChartData returns the caller's per-modality completion counts.
func (s *StudentService) ChartData(ctx context.Context, caller *domain.Identity) (domain.ModalityCounts, error) {
	if !caller.IsStudent() {
		return domain.ModalityCounts{}, domain.ErrUnauthorized
	}
	return s.agg.ModalityCounts(ctx, caller.Name)
}

// UpdateProfile replaces the caller's location fields. Empty fields clear the stored value.
func (s *StudentService) UpdateProfile(ctx context.Context, caller *domain.Identity, update domain.ProfileUpdate) error {
	if !caller.IsStudent() {
		return domain.ErrUnauthorized
	}
	update.College = strings.TrimSpace(update.College)
	update.Place = strings.TrimSpace(update.Place)
	update.District = strings.TrimSpace(update.District)
	update.State = strings.TrimSpace(update.State)
	if err := s.validate.Struct(update); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := s.students.UpdateProfile(ctx, caller.Name, update); err != nil {
		return storeErr(err)
	}
	return nil
}
