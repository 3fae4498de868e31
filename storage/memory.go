package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"school-game-platform/models"

	"github.com/google/uuid"
)

type levelKey struct {
	userID  string
	gameKey string
	level   models.LevelID
}

// MemoryStore is an in-process Store used by tests and STORE_DRIVER=memory.
// One lock serialises every write, which is what makes MergeLevel atomic here.
type MemoryStore struct {
	mu sync.RWMutex

	levels   map[levelKey]models.LevelState
	events   []models.ProgressEvent
	schools  map[string]models.School
	students map[string]models.Student
	games    map[string]models.Game
	aliases  map[string]models.GameAlias
	ratings  map[string]models.GameRating // key: gameID + "/" + userID
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		levels:   make(map[levelKey]models.LevelState),
		schools:  make(map[string]models.School),
		students: make(map[string]models.Student),
		games:    make(map[string]models.Game),
		aliases:  make(map[string]models.GameAlias),
		ratings:  make(map[string]models.GameRating),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }
func (s *MemoryStore) Close() error                   { return nil }

// ===== Progress =====

func (s *MemoryStore) GetGameProgress(ctx context.Context, userID, gameKey string) (models.GameProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	progress := models.NewGameProgress()
	for k, state := range s.levels {
		if k.userID == userID && k.gameKey == gameKey {
			progress.Levels[k.level] = state
		}
	}
	return progress, nil
}

func (s *MemoryStore) GetAllProgress(ctx context.Context, userID string) (map[string]models.GameProgress, error) {
	byUser, _ := s.GetProgressForUsers(ctx, []string{userID})
	if ledger, ok := byUser[userID]; ok {
		return ledger, nil
	}
	return map[string]models.GameProgress{}, nil
}

func (s *MemoryStore) GetProgressForUsers(ctx context.Context, userIDs []string) (map[string]map[string]models.GameProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = struct{}{}
	}

	out := make(map[string]map[string]models.GameProgress, len(userIDs))
	for k, state := range s.levels {
		if _, ok := wanted[k.userID]; !ok {
			continue
		}
		ledger, ok := out[k.userID]
		if !ok {
			ledger = make(map[string]models.GameProgress)
			out[k.userID] = ledger
		}
		progress, ok := ledger[k.gameKey]
		if !ok {
			progress = models.NewGameProgress()
			ledger[k.gameKey] = progress
		}
		progress.Levels[k.level] = state
	}
	return out, nil
}

func (s *MemoryStore) MergeLevel(ctx context.Context, userID, gameKey string, level models.LevelID, delta models.LevelState) (models.LevelState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := levelKey{userID: userID, gameKey: gameKey, level: level}
	merged := s.levels[k].Merge(delta)
	s.levels[k] = merged
	return merged, nil
}

func (s *MemoryStore) RecordEvent(ctx context.Context, event *models.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	s.events = append(s.events, *event)
	return nil
}

// Events returns a copy of the recorded report ledger.
func (s *MemoryStore) Events() []models.ProgressEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ProgressEvent(nil), s.events...)
}

// ===== Roster =====

func (s *MemoryStore) GetSchool(ctx context.Context, id string) (*models.School, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	school, ok := s.schools[id]
	if !ok || school.DeletedAt.Valid {
		return nil, ErrNotFound
	}
	return &school, nil
}

func (s *MemoryStore) ListSchools(ctx context.Context) ([]models.School, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.School, 0, len(s.schools))
	for _, school := range s.schools {
		if !school.DeletedAt.Valid {
			out = append(out, school)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	student, ok := s.students[id]
	if !ok || student.DeletedAt.Valid {
		return nil, ErrNotFound
	}
	return &student, nil
}

func (s *MemoryStore) ListApprovedStudents(ctx context.Context, schoolID string) ([]models.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Student
	for _, st := range s.students {
		if st.SchoolID == schoolID && st.Approved && !st.DeletedAt.Valid {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) UpsertSchools(ctx context.Context, schools []models.School) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, school := range schools {
		if school.CreatedAt.IsZero() {
			school.CreatedAt = now
		}
		if school.UpdatedAt.IsZero() {
			school.UpdatedAt = now
		}
		if existing, ok := s.schools[school.ID]; ok {
			school.CreatedAt = existing.CreatedAt
		}
		s.schools[school.ID] = school
	}
	return nil
}

func (s *MemoryStore) UpsertStudents(ctx context.Context, students []models.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, st := range students {
		if st.CreatedAt.IsZero() {
			st.CreatedAt = now
		}
		if st.UpdatedAt.IsZero() {
			st.UpdatedAt = now
		}
		if existing, ok := s.students[st.ID]; ok {
			st.CreatedAt = existing.CreatedAt
		}
		s.students[st.ID] = st
	}
	return nil
}

func (s *MemoryStore) LatestRosterUpdate(ctx context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest time.Time
	for _, st := range s.students {
		if st.UpdatedAt.After(latest) {
			latest = st.UpdatedAt
		}
	}
	for _, school := range s.schools {
		if school.UpdatedAt.After(latest) {
			latest = school.UpdatedAt
		}
	}
	return latest, nil
}

// ===== Games =====

func (s *MemoryStore) CreateGame(ctx context.Context, game *models.Game, aliases []models.GameAlias) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if game.CreatedAt.IsZero() {
		game.CreatedAt = now
	}
	game.UpdatedAt = now

	stored := *game
	stored.Aliases = nil
	s.games[game.ID] = stored
	for _, a := range aliases {
		if _, exists := s.aliases[a.Alias]; !exists {
			a.CreatedAt = now
			s.aliases[a.Alias] = a
		}
	}
	return nil
}

func (s *MemoryStore) GetGame(ctx context.Context, id string) (*models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	game, ok := s.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	for _, a := range s.aliases {
		if a.GameID == id {
			game.Aliases = append(game.Aliases, a)
		}
	}
	sort.Slice(game.Aliases, func(i, j int) bool { return game.Aliases[i].Alias < game.Aliases[j].Alias })
	return &game, nil
}

func (s *MemoryStore) ListGames(ctx context.Context) ([]models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Game, 0, len(s.games))
	for _, g := range s.games {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (s *MemoryStore) ListAliases(ctx context.Context) ([]models.GameAlias, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.GameAlias, 0, len(s.aliases))
	for _, a := range s.aliases {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out, nil
}

func (s *MemoryStore) AddAliases(ctx context.Context, aliases []models.GameAlias) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added int64
	for _, a := range aliases {
		if _, exists := s.aliases[a.Alias]; exists {
			continue
		}
		a.CreatedAt = time.Now().UTC()
		s.aliases[a.Alias] = a
		added++
	}
	return added, nil
}

func (s *MemoryStore) UpsertRating(ctx context.Context, rating *models.GameRating) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	game, ok := s.games[rating.GameID]
	if !ok {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()
	key := rating.GameID + "/" + rating.UserID
	if existing, ok := s.ratings[key]; ok {
		rating.ID = existing.ID
		rating.CreatedAt = existing.CreatedAt
	} else if rating.CreatedAt.IsZero() {
		rating.CreatedAt = now
	}
	rating.UpdatedAt = now
	s.ratings[key] = *rating

	var sum, count int64
	prefix := rating.GameID + "/"
	for k, r := range s.ratings {
		if strings.HasPrefix(k, prefix) {
			sum += int64(r.Rating)
			count++
		}
	}
	game.RatingCount = count
	if count > 0 {
		game.AverageRating = float64(sum) / float64(count)
	}
	s.games[game.ID] = game
	return &game, nil
}

func (s *MemoryStore) SchoolRatings(ctx context.Context, schoolID string) ([]models.GameRatingAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type acc struct{ sum, count int64 }
	byGame := make(map[string]*acc)
	for _, r := range s.ratings {
		st, ok := s.students[r.UserID]
		if !ok || st.SchoolID != schoolID || !st.Approved || st.DeletedAt.Valid {
			continue
		}
		a, ok := byGame[r.GameID]
		if !ok {
			a = &acc{}
			byGame[r.GameID] = a
		}
		a.sum += int64(r.Rating)
		a.count++
	}

	out := make([]models.GameRatingAggregate, 0, len(byGame))
	for gameID, a := range byGame {
		out = append(out, models.GameRatingAggregate{
			GameID:        gameID,
			AverageRating: float64(a.sum) / float64(a.count),
			RatingCount:   a.count,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GameID < out[j].GameID })
	return out, nil
}
