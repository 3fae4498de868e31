package services

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"school-game-platform/models"
	"school-game-platform/storage"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
)

// ProgressService applies progress reports and serves the progress ledger.
type ProgressService struct {
	Progress storage.ProgressRepository
	Roster   storage.RosterRepository
	Cache    StatsCache
}

func NewProgressService(progress storage.ProgressRepository, roster storage.RosterRepository, cache StatsCache) *ProgressService {
	if cache == nil {
		cache = NoopStatsCache{}
	}
	return &ProgressService{Progress: progress, Roster: roster, Cache: cache}
}

// ApplyReport validates a raw report body and folds it into the student's
// level state. Nothing is written when validation fails.
func (s *ProgressService) ApplyReport(ctx context.Context, userID, gameKey string, body []byte) (models.LevelState, error) {
	userID = strings.TrimSpace(userID)
	gameKey = strings.TrimSpace(gameKey)
	if userID == "" {
		return models.LevelState{}, &ValidationError{Field: "user_id", Reason: "is required"}
	}
	if gameKey == "" {
		return models.LevelState{}, &ValidationError{Field: "game", Reason: "is required"}
	}

	report, err := ParseProgressReport(body)
	if err != nil {
		return models.LevelState{}, err
	}
	return s.Apply(ctx, userID, gameKey, report, body)
}

// Apply merges an already normalised report. raw is kept in the event ledger
// as received; it may be nil.
func (s *ProgressService) Apply(ctx context.Context, userID, gameKey string, report models.ProgressReport, raw []byte) (models.LevelState, error) {
	state, err := s.Progress.MergeLevel(ctx, userID, gameKey, report.Stage, report.Delta())
	if err != nil {
		return models.LevelState{}, errors.Wrapf(err, "merge progress for %s/%s", userID, gameKey)
	}

	if len(raw) > 0 && json.Valid(raw) {
		event := &models.ProgressEvent{
			ID:         uuid.NewString(),
			UserID:     userID,
			GameKey:    gameKey,
			LevelID:    uint32(report.Stage),
			Payload:    datatypes.JSON(raw),
			ReceivedAt: time.Now().UTC(),
		}
		// The ledger is an audit trail; the merged state is already durable.
		if err := s.Progress.RecordEvent(ctx, event); err != nil {
			log.Printf("⚠️ [PROGRESS] failed to record event for %s/%s: %v", userID, gameKey, err)
		}
	}

	s.invalidateSchool(ctx, userID)

	log.Printf("🎮 [PROGRESS] user=%s game=%s stage=%d -> %+v", userID, gameKey, report.Stage, state)
	return state, nil
}

// CheckReporter rejects students the roster knows but has not approved.
// Students the roster has not seen yet are let through.
func (s *ProgressService) CheckReporter(ctx context.Context, userID string) error {
	if s.Roster == nil {
		return nil
	}
	student, err := s.Roster.GetStudent(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return errors.Wrapf(err, "load student %s", userID)
	}
	if !student.Approved {
		return ErrForbidden
	}
	return nil
}

// StudentSchool returns the school a student belongs to.
func (s *ProgressService) StudentSchool(ctx context.Context, userID string) (string, error) {
	if s.Roster == nil {
		return "", &NotFoundError{Resource: "student", ID: userID}
	}
	student, err := s.Roster.GetStudent(ctx, userID)
	if err != nil {
		return "", notFoundOr(err, "student", userID)
	}
	return student.SchoolID, nil
}

func (s *ProgressService) invalidateSchool(ctx context.Context, userID string) {
	if s.Roster == nil {
		return
	}
	student, err := s.Roster.GetStudent(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("⚠️ [PROGRESS] school lookup for %s failed: %v", userID, err)
		}
		return
	}
	s.Cache.Invalidate(ctx, student.SchoolID)
}

// GetProgress never fails on a missing entry; it returns an empty ledger.
func (s *ProgressService) GetProgress(ctx context.Context, userID, gameKey string) (models.GameProgress, error) {
	progress, err := s.Progress.GetGameProgress(ctx, userID, strings.TrimSpace(gameKey))
	if err != nil {
		return models.GameProgress{}, errors.Wrapf(err, "load progress for %s/%s", userID, gameKey)
	}
	if progress.Levels == nil {
		progress = models.NewGameProgress()
	}
	return progress, nil
}

func (s *ProgressService) GetAllProgress(ctx context.Context, userID string) (map[string]models.GameProgress, error) {
	all, err := s.Progress.GetAllProgress(ctx, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "load progress for %s", userID)
	}
	if all == nil {
		all = map[string]models.GameProgress{}
	}
	return all, nil
}
