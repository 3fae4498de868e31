package services

import (
	"context"
	"sync"
	"testing"

	"school-game-platform/models"
	"school-game-platform/storage"

	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

// recordingCache is a StatsCache that remembers what happened to it.
type recordingCache struct {
	mu          sync.Mutex
	entries     map[string]models.SchoolStats
	invalidated []string
	gets        int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: map[string]models.SchoolStats{}}
}

func (c *recordingCache) Get(_ context.Context, schoolID string) (*models.SchoolStats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	s, ok := c.entries[schoolID]
	if !ok {
		return nil, false
	}
	return &s, true
}

func (c *recordingCache) Set(_ context.Context, stats *models.SchoolStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[stats.SchoolID] = *stats
}

func (c *recordingCache) Invalidate(_ context.Context, schoolID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, schoolID)
	c.invalidated = append(c.invalidated, schoolID)
}

var _ StatsCache = (*recordingCache)(nil)

// seedSchool stores a school and its students.
func seedSchool(t *testing.T, store *storage.MemoryStore, schoolID string, students ...models.Student) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.UpsertSchools(ctx, []models.School{{ID: schoolID, Name: "School " + schoolID}}))
	for i := range students {
		students[i].SchoolID = schoolID
	}
	require.NoError(t, store.UpsertStudents(ctx, students))
}

// seedGame registers a catalog game with its id and title-slug aliases.
func seedGame(t *testing.T, store *storage.MemoryStore, id, title string, extra ...string) models.Game {
	t.Helper()
	game := models.Game{ID: id, Title: title, MainLogoURL: "https://cdn.example.com/" + id + ".png"}
	aliases := AliasesFor(game, nil)
	for _, a := range extra {
		aliases = append(aliases, models.GameAlias{Alias: a, GameID: id})
	}
	require.NoError(t, store.CreateGame(context.Background(), &game, aliases))
	return game
}

// report applies a raw JSON progress report and fails the test on error.
func report(t *testing.T, svc *ProgressService, userID, gameKey, body string) models.LevelState {
	t.Helper()
	state, err := svc.ApplyReport(context.Background(), userID, gameKey, []byte(body))
	require.NoError(t, err)
	return state
}
