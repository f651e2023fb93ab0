package catalog

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/summitsafety/academy/internal/capacity"
)

// RepositoryPort defines data access methods for the catalog.
type RepositoryPort interface {
	GetCourse(ctx context.Context, id string) (*Course, error)
	GetCourseBySlug(ctx context.Context, slug string) (*Course, error)
	ListActiveCourses(ctx context.Context) ([]Course, error)
	GetCompany(ctx context.Context, id string) (*Company, error)
	IncrementCodesIssued(ctx context.Context, companyID string, count int) error
}

// SessionLister supplies scheduled sessions for the schedule view.
type SessionLister interface {
	ListUpcoming(ctx context.Context) ([]capacity.Session, error)
}

// ScheduleEntry is a session joined with its course for display.
type ScheduleEntry struct {
	SessionID      string          `json:"session_id"`
	CourseID       string          `json:"course_id"`
	CourseTitle    string          `json:"course_title"`
	Price          decimal.Decimal `json:"price"`
	StartAt        time.Time       `json:"start_at"`
	EndAt          time.Time       `json:"end_at"`
	Timezone       string          `json:"timezone"`
	SeatsRemaining int             `json:"seats_remaining"`
	Status         string          `json:"status"`
}

// Service handles catalog reads and the cached schedule view.
type Service struct {
	repo     RepositoryPort
	sessions SessionLister
	cache    *ScheduleCache
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, sessions SessionLister, cache *ScheduleCache) *Service {
	return &Service{repo: repo, sessions: sessions, cache: cache}
}

// GetCourse returns a course by id.
func (s *Service) GetCourse(ctx context.Context, id string) (*Course, error) {
	return s.repo.GetCourse(ctx, id)
}

// GetCourseBySlug returns a course by slug.
func (s *Service) GetCourseBySlug(ctx context.Context, slug string) (*Course, error) {
	return s.repo.GetCourseBySlug(ctx, slug)
}

// ListCourses returns the purchasable catalog.
func (s *Service) ListCourses(ctx context.Context) ([]Course, error) {
	return s.repo.ListActiveCourses(ctx)
}

// GetCompany returns a company by id.
func (s *Service) GetCompany(ctx context.Context, id string) (*Company, error) {
	return s.repo.GetCompany(ctx, id)
}

// RecordCodesIssued tracks how many access codes have been cut for a company.
func (s *Service) RecordCodesIssued(ctx context.Context, companyID string, count int) error {
	return s.repo.IncrementCodesIssued(ctx, companyID, count)
}

// Schedule returns upcoming sessions joined with course data. The view is
// cached per day-bucket; seat counts in the cache are advisory only and a
// reservation always re-checks against the store.
func (s *Service) Schedule(ctx context.Context) ([]ScheduleEntry, error) {
	key, err := s.cache.BuildKey(ctx, keySchedule(formatDay(time.Now())))
	if err != nil {
		return nil, err
	}
	var entries []ScheduleEntry
	err = s.cache.FetchJSON(ctx, key, &entries, func(ctx context.Context) (interface{}, error) {
		return s.buildSchedule(ctx)
	})
	return entries, err
}

// InvalidateSchedule drops cached schedule views after admin changes.
func (s *Service) InvalidateSchedule(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) buildSchedule(ctx context.Context) ([]ScheduleEntry, error) {
	sessions, err := s.sessions.ListUpcoming(ctx)
	if err != nil {
		return nil, err
	}
	courses, err := s.repo.ListActiveCourses(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Course, len(courses))
	for _, c := range courses {
		byID[c.ID] = c
	}

	now := time.Now()
	entries := make([]ScheduleEntry, 0, len(sessions))
	for _, sess := range sessions {
		course, ok := byID[sess.CourseID]
		if !ok {
			continue
		}
		entries = append(entries, ScheduleEntry{
			SessionID:      sess.ID,
			CourseID:       course.ID,
			CourseTitle:    course.Title,
			Price:          course.Price,
			StartAt:        sess.StartAt,
			EndAt:          sess.EndAt,
			Timezone:       sess.Timezone,
			SeatsRemaining: sess.SeatsRemaining(),
			Status:         string(sess.Status(now)),
		})
	}
	return entries, nil
}
