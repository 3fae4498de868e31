package storage

import (
	"context"
	"errors"
	"time"

	"school-game-platform/models"
)

// ErrNotFound is returned by single-record lookups that match nothing.
var ErrNotFound = errors.New("record not found")

// ProgressRepository persists per-student, per-game level state.
type ProgressRepository interface {
	// GetGameProgress returns an empty GameProgress when nothing was reported yet.
	GetGameProgress(ctx context.Context, userID, gameKey string) (models.GameProgress, error)
	GetAllProgress(ctx context.Context, userID string) (map[string]models.GameProgress, error)
	// GetProgressForUsers returns userID -> gameKey -> progress for every listed user
	// that has at least one level row.
	GetProgressForUsers(ctx context.Context, userIDs []string) (map[string]map[string]models.GameProgress, error)
	// MergeLevel atomically folds delta into the stored level state and returns the result.
	MergeLevel(ctx context.Context, userID, gameKey string, level models.LevelID, delta models.LevelState) (models.LevelState, error)
	RecordEvent(ctx context.Context, event *models.ProgressEvent) error
}

// RosterRepository holds the school/student snapshot mirrored from the school-management service.
type RosterRepository interface {
	GetSchool(ctx context.Context, id string) (*models.School, error)
	ListSchools(ctx context.Context) ([]models.School, error)
	GetStudent(ctx context.Context, id string) (*models.Student, error)
	ListApprovedStudents(ctx context.Context, schoolID string) ([]models.Student, error)
	UpsertSchools(ctx context.Context, schools []models.School) error
	UpsertStudents(ctx context.Context, students []models.Student) error
	// LatestRosterUpdate is the newest student or school updated_at, zero when empty.
	LatestRosterUpdate(ctx context.Context) (time.Time, error)
}

// GameRepository holds the game catalog, its alias table and ratings.
type GameRepository interface {
	CreateGame(ctx context.Context, game *models.Game, aliases []models.GameAlias) error
	GetGame(ctx context.Context, id string) (*models.Game, error)
	ListGames(ctx context.Context) ([]models.Game, error)
	ListAliases(ctx context.Context) ([]models.GameAlias, error)
	// AddAliases inserts aliases that do not exist yet and returns how many were added.
	AddAliases(ctx context.Context, aliases []models.GameAlias) (int64, error)
	// UpsertRating stores the rating and refreshes the game's rating aggregate.
	UpsertRating(ctx context.Context, rating *models.GameRating) (*models.Game, error)
	// SchoolRatings aggregates ratings given by the approved students of one school.
	SchoolRatings(ctx context.Context, schoolID string) ([]models.GameRatingAggregate, error)
}

// Store bundles every repository behind one handle.
type Store interface {
	ProgressRepository
	RosterRepository
	GameRepository

	Ping(ctx context.Context) error
	Close() error
}
