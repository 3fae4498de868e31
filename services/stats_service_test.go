package services

import (
	"context"
	"fmt"
	"testing"

	"school-game-platform/models"
	"school-game-platform/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statsFixture struct {
	store    *storage.MemoryStore
	progress *ProgressService
	stats    *StatsService
	cache    *recordingCache
}

func newStatsFixture(t *testing.T) *statsFixture {
	t.Helper()
	store := storage.NewMemoryStore()
	cache := newRecordingCache()
	return &statsFixture{
		store:    store,
		progress: NewProgressService(store, store, cache),
		stats:    NewStatsService(store, store, store, cache),
		cache:    cache,
	}
}

func TestComputeSchoolStatsBadgeScenario(t *testing.T) {
	f := newStatsFixture(t)
	seedSchool(t, f.store, "s1",
		models.Student{ID: "a", Username: "alice", Approved: true},
		models.Student{ID: "b", Username: "bob", Approved: true},
	)
	seedGame(t, f.store, "game1", "Game One")

	for stage := 1; stage <= 3; stage++ {
		report(t, f.progress, "a", "game1", fmt.Sprintf(`{"stage":%d,"badge":1}`, stage))
	}

	stats, err := f.stats.ComputeSchoolStats(context.Background(), "s1")
	require.NoError(t, err)

	assert.Equal(t, 2, stats.RegisteredStudents)
	assert.Equal(t, int64(3), stats.TotalBadges)
	assert.Equal(t, 1, stats.StudentsWithBadges)
	assert.Equal(t, int64(1), stats.TotalCertificates)
	assert.Equal(t, 1, stats.StudentsWithCertificates)
	assert.Zero(t, stats.TotalGameAttempts)
}

func TestComputeSchoolStatsTotals(t *testing.T) {
	f := newStatsFixture(t)
	seedSchool(t, f.store, "s1",
		models.Student{ID: "a", Username: "alice", Approved: true},
		models.Student{ID: "b", Username: "bob", Approved: true},
		models.Student{ID: "p", Username: "pending", Approved: false},
	)
	seedSchool(t, f.store, "s2", models.Student{ID: "z", Username: "zed", Approved: true})
	seedGame(t, f.store, "g-df", "Data Forge", "data-forge")
	seedGame(t, f.store, "g-ns", "Network Shield", "cyber-security")

	report(t, f.progress, "a", "data-forge", `{"stage":1,"score":100,"badge":2,"status":2,"certificate":true}`)
	report(t, f.progress, "a", "data-forge", `{"stage":2,"score":50,"badge":1,"status":2}`)
	report(t, f.progress, "a", "cyber-security", `{"stage":1,"score":20,"badge":3}`)
	report(t, f.progress, "b", "cyber-security", `{"stage":1,"score":400,"badge":1,"status":2}`)
	report(t, f.progress, "p", "data-forge", `{"stage":1,"score":9999,"badge":5}`)
	report(t, f.progress, "z", "data-forge", `{"stage":1,"score":9999,"badge":5}`)

	stats, err := f.stats.ComputeSchoolStats(context.Background(), "s1")
	require.NoError(t, err)

	assert.Equal(t, 2, stats.RegisteredStudents)
	assert.Equal(t, int64(4), stats.TotalBadges)
	// a: 3 badges -> 1, b: 1 badge -> 0. Flags from the client are not added.
	assert.Equal(t, int64(1), stats.TotalCertificates)
	assert.Equal(t, int64(1), stats.CompletionCertificates)
	assert.Equal(t, 2, stats.StudentsWithBadges)
	assert.Equal(t, 1, stats.StudentsWithCertificates)
	assert.Equal(t, int64(3), stats.TotalGameAttempts)

	require.Len(t, stats.TopPerformers, 2)
	assert.Equal(t, models.PerformerEntry{UserID: "b", Name: "bob", Score: 400, Badges: 1, Certificates: 0, Attempts: 1}, stats.TopPerformers[0])
	assert.Equal(t, models.PerformerEntry{UserID: "a", Name: "alice", Score: 170, Badges: 3, Certificates: 1, Attempts: 2}, stats.TopPerformers[1])

	require.Len(t, stats.TopPlayedGames, 2)
	assert.Equal(t, "g-ns", stats.TopPlayedGames[0].GameID)
	assert.Equal(t, 2, stats.TopPlayedGames[0].Players)
	assert.Equal(t, "Network Shield", stats.TopPlayedGames[0].Title)
	assert.Equal(t, "https://cdn.example.com/g-ns.png", stats.TopPlayedGames[0].ImageURL)
	assert.Equal(t, "g-df", stats.TopPlayedGames[1].GameID)
	assert.Equal(t, 1, stats.TopPlayedGames[1].Players)
}

func TestComputeSchoolStatsGhostGame(t *testing.T) {
	f := newStatsFixture(t)
	seedSchool(t, f.store, "s1",
		models.Student{ID: "a", Username: "alice", Approved: true},
		models.Student{ID: "b", Username: "bob", Approved: true},
	)
	seedGame(t, f.store, "g-df", "Data Forge", "data-forge")

	report(t, f.progress, "a", "ghost-game", `{"stage":1,"score":10,"badge":1,"status":2}`)
	report(t, f.progress, "a", "data-forge", `{"stage":1,"score":10,"badge":1}`)
	report(t, f.progress, "b", "data-forge", `{"stage":1,"score":5}`)

	stats, err := f.stats.ComputeSchoolStats(context.Background(), "s1")
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.TotalBadges)
	assert.Equal(t, int64(1), stats.TotalGameAttempts)

	require.Len(t, stats.TopPlayedGames, 2)
	assert.Equal(t, models.PlayedGame{
		GameID:   "g-df",
		Title:    "Data Forge",
		ImageURL: "https://cdn.example.com/g-df.png",
		Players:  2,
		Resolved: true,
	}, stats.TopPlayedGames[0])
	assert.Equal(t, models.PlayedGame{
		GameID:   "ghost-game",
		Title:    models.UnknownGameTitle,
		Players:  1,
		Resolved: false,
	}, stats.TopPlayedGames[1])
}

func TestComputeSchoolStatsCountsAliasesOfOneGameOnce(t *testing.T) {
	f := newStatsFixture(t)
	seedSchool(t, f.store, "s1", models.Student{ID: "a", Username: "alice", Approved: true})
	seedGame(t, f.store, "g-df", "Data Forge", "data-forge", "dataforge")

	report(t, f.progress, "a", "data-forge", `{"stage":1,"badge":1}`)
	report(t, f.progress, "a", "dataforge", `{"stage":2,"badge":1}`)
	report(t, f.progress, "a", "g-df", `{"stage":3,"badge":1}`)

	stats, err := f.stats.ComputeSchoolStats(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalBadges)
	require.Len(t, stats.TopPlayedGames, 1)
	assert.Equal(t, 1, stats.TopPlayedGames[0].Players)
}

func TestTopPerformersTruncatesWithStableTieBreak(t *testing.T) {
	f := newStatsFixture(t)
	students := []models.Student{
		{ID: "u1", FirstName: strPtr("zoe"), Approved: true},
		{ID: "u2", FirstName: strPtr("Émile"), Approved: true},
		{ID: "u3", FirstName: strPtr("adam"), Approved: true},
		{ID: "u4", FirstName: strPtr("Bea"), LastName: strPtr("Kim"), Approved: true, AvatarURL: strPtr("https://cdn.example.com/bea.png")},
		{ID: "u5", Username: "carl", Approved: true},
		{ID: "u6", Username: "dina", Approved: true},
		{ID: "u7", Username: "eve", Approved: true},
	}
	seedSchool(t, f.store, "s1", students...)

	scores := map[string]int{"u1": 50, "u2": 50, "u3": 50, "u4": 90, "u5": 10, "u6": 10, "u7": 70}
	for id, score := range scores {
		report(t, f.progress, id, "data-forge", fmt.Sprintf(`{"stage":1,"score":%d}`, score))
	}

	stats, err := f.stats.ComputeSchoolStats(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, stats.TopPerformers, TopPerformersLimit)

	var names []string
	for _, p := range stats.TopPerformers {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Bea Kim", "eve", "adam", "Émile", "zoe"}, names)
	assert.Equal(t, "https://cdn.example.com/bea.png", stats.TopPerformers[0].AvatarURL)
}

func TestFavoriteGames(t *testing.T) {
	f := newStatsFixture(t)
	ctx := context.Background()
	seedSchool(t, f.store, "s1",
		models.Student{ID: "a", Username: "alice", Approved: true},
		models.Student{ID: "b", Username: "bob", Approved: true},
		models.Student{ID: "p", Username: "pending", Approved: false},
	)
	seedSchool(t, f.store, "s2", models.Student{ID: "z", Username: "zed", Approved: true})

	games := NewGameService(f.store, nil, nil)
	for _, g := range []struct{ id, title string }{
		{"g1", "Alpha"}, {"g2", "Bravo"}, {"g3", "Charlie"}, {"g4", "Delta"}, {"g5", "Echo"}, {"g6", "Unrated"},
	} {
		seedGame(t, f.store, g.id, g.title)
	}

	rate := func(gameID, userID string, rating int) {
		_, err := games.RateGame(ctx, gameID, userID, RatingInput{Rating: rating})
		require.NoError(t, err)
	}
	rate("g1", "a", 3)
	rate("g2", "a", 5)
	rate("g2", "b", 4)
	rate("g3", "a", 5)
	rate("g3", "b", 5)
	rate("g4", "a", 5)
	rate("g5", "a", 1)
	rate("g5", "p", 5)
	rate("g5", "z", 5)
	rate("g1", "z", 1)

	stats, err := f.stats.ComputeSchoolStats(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, stats.FavoriteGames, FavoriteGamesLimit)

	var ids []string
	for _, g := range stats.FavoriteGames {
		ids = append(ids, g.GameID)
	}
	// g3 and g4 tie on 5.0; g3 has more ratings.
	assert.Equal(t, []string{"g3", "g4", "g2", "g1"}, ids)
	assert.Equal(t, "Charlie", stats.FavoriteGames[0].Title)
	assert.InDelta(t, 4.5, stats.FavoriteGames[2].AverageRating, 0.001)
	assert.Equal(t, int64(2), stats.FavoriteGames[2].RatingCount)
	assert.InDelta(t, 3.0, stats.FavoriteGames[3].AverageRating, 0.001)
}

func TestComputeSchoolStatsMissingSchool(t *testing.T) {
	f := newStatsFixture(t)

	_, err := f.stats.ComputeSchoolStats(context.Background(), "nowhere")
	require.Error(t, err)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "school", nf.Resource)

	_, err = f.stats.SchoolGameProgress(context.Background(), "nowhere")
	assert.True(t, IsNotFound(err))
}

func TestComputeSchoolStatsEmptySchool(t *testing.T) {
	f := newStatsFixture(t)
	seedSchool(t, f.store, "s1")

	stats, err := f.stats.ComputeSchoolStats(context.Background(), "s1")
	require.NoError(t, err)
	assert.Zero(t, stats.RegisteredStudents)
	assert.NotNil(t, stats.TopPerformers)
	assert.NotNil(t, stats.FavoriteGames)
	assert.NotNil(t, stats.TopPlayedGames)
}

func TestSchoolStatsUsesCache(t *testing.T) {
	f := newStatsFixture(t)
	ctx := context.Background()
	seedSchool(t, f.store, "s1", models.Student{ID: "a", Username: "alice", Approved: true})

	report(t, f.progress, "a", "data-forge", `{"stage":1,"badge":1}`)
	first, err := f.stats.SchoolStats(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.TotalBadges)

	// Written behind the service's back: the cached value is served.
	_, err = f.store.MergeLevel(ctx, "a", "data-forge", 2, models.LevelState{BadgeTier: 1})
	require.NoError(t, err)
	cached, err := f.stats.SchoolStats(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cached.TotalBadges)

	// A report through the protocol drops the entry.
	report(t, f.progress, "a", "data-forge", `{"stage":3,"badge":1}`)
	fresh, err := f.stats.SchoolStats(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), fresh.TotalBadges)
	assert.Equal(t, int64(1), fresh.TotalCertificates)
}

func TestSchoolGameProgress(t *testing.T) {
	f := newStatsFixture(t)
	seedSchool(t, f.store, "s1",
		models.Student{ID: "a", Username: "alice", Approved: true},
		models.Student{ID: "b", Username: "bob", Approved: true},
	)
	seedGame(t, f.store, "g-df", "Data Forge", "data-forge")
	seedGame(t, f.store, "g-ns", "Network Shield", "cyber-security")

	// Two badges each on Data Forge: no student reaches a certificate on its
	// own, the game's total does.
	report(t, f.progress, "a", "data-forge", `{"stage":1,"badge":1,"score":30,"status":2}`)
	report(t, f.progress, "a", "data-forge", `{"stage":2,"badge":1,"score":20,"certificate":true}`)
	report(t, f.progress, "b", "data-forge", `{"stage":1,"badge":2,"score":70,"status":2}`)
	report(t, f.progress, "b", "data-forge", `{"stage":2,"badge":1}`)
	report(t, f.progress, "b", "cyber-security", `{"stage":1,"score":15}`)
	report(t, f.progress, "b", "ghost-game", `{"stage":1,"score":1}`)

	out, err := f.stats.SchoolGameProgress(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, out.Games, 3)

	assert.Equal(t, models.GameProgressRow{
		GameID:                 "g-df",
		Title:                  "Data Forge",
		ImageURL:               "https://cdn.example.com/g-df.png",
		Resolved:               true,
		Players:                2,
		Badges:                 4,
		Certificates:           1,
		Attempts:               2,
		CompletionCertificates: 1,
		TopScore:               70,
	}, out.Games[0])
	assert.Equal(t, "g-ns", out.Games[1].GameID)
	assert.Equal(t, "ghost-game", out.Games[2].GameID)
	assert.False(t, out.Games[2].Resolved)

	stats, err := f.stats.ComputeSchoolStats(context.Background(), "s1")
	require.NoError(t, err)
	assert.Zero(t, stats.TotalCertificates)
}

func TestStudentSummary(t *testing.T) {
	f := newStatsFixture(t)
	seedSchool(t, f.store, "s1", models.Student{ID: "a", FirstName: strPtr("Amina"), LastName: strPtr("Osei"), Approved: true})
	seedGame(t, f.store, "g-df", "Data Forge", "data-forge")

	for stage := 1; stage <= 4; stage++ {
		report(t, f.progress, "a", "data-forge", fmt.Sprintf(`{"stage":%d,"badge":1,"score":10,"xp":5,"status":2}`, stage))
	}
	report(t, f.progress, "a", "ghost-game", `{"stage":1,"badge":1,"score":3,"certificate":true}`)
	report(t, f.progress, "a", "ghost-game", `{"stage":2,"badge":2}`)

	summary, err := f.stats.StudentSummary(context.Background(), "a")
	require.NoError(t, err)

	assert.Equal(t, "Amina Osei", summary.Name)
	assert.Equal(t, "s1", summary.SchoolID)
	assert.Equal(t, int64(6), summary.TotalBadges)
	assert.Equal(t, int64(2), summary.TotalCertificates)
	assert.Equal(t, int64(1), summary.CompletionCertificates)
	assert.Equal(t, int64(4), summary.TotalGameAttempts)
	assert.Equal(t, int64(43), summary.TotalScore)
	assert.Equal(t, int64(20), summary.TotalXP)

	require.Len(t, summary.Games, 2)
	assert.Equal(t, models.StudentGameSummary{
		GameKey: "data-forge", GameID: "g-df", Title: "Data Forge", Resolved: true,
		Badges: 4, Certificates: 1, Attempts: 4, Score: 40, XP: 20,
	}, summary.Games[0])
	assert.Equal(t, models.StudentGameSummary{
		GameKey: "ghost-game", Title: models.UnknownGameTitle,
		Badges: 2, Certificates: 0, Score: 3,
	}, summary.Games[1])

	_, err = f.stats.StudentSummary(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
}

func TestTopPerformersWithMaximumScores(t *testing.T) {
	f := newStatsFixture(t)
	seedSchool(t, f.store, "s1",
		models.Student{ID: "a", Username: "alice", Approved: true},
		models.Student{ID: "b", Username: "bob", Approved: true},
	)

	report(t, f.progress, "a", "data-forge", `{"stage":1,"score":9223372036854775807}`)
	report(t, f.progress, "a", "data-forge", `{"stage":2,"score":9223372036854775807}`)
	report(t, f.progress, "b", "data-forge", `{"stage":1,"score":5}`)

	stats, err := f.stats.ComputeSchoolStats(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, stats.TopPerformers, 2)
	assert.Equal(t, "a", stats.TopPerformers[0].UserID)
	assert.Equal(t, 2*models.MaxLevelValue, stats.TopPerformers[0].Score)
	assert.Equal(t, "b", stats.TopPerformers[1].UserID)
}

func TestSchoolGameProgressTopScoreSumsAliases(t *testing.T) {
	f := newStatsFixture(t)
	seedSchool(t, f.store, "s1",
		models.Student{ID: "a", Username: "alice", Approved: true},
		models.Student{ID: "b", Username: "bob", Approved: true},
	)
	seedGame(t, f.store, "g-df", "Data Forge", "data-forge", "dataforge")

	report(t, f.progress, "a", "data-forge", `{"stage":1,"score":40}`)
	report(t, f.progress, "a", "dataforge", `{"stage":2,"score":40}`)
	report(t, f.progress, "b", "g-df", `{"stage":1,"score":60}`)

	out, err := f.stats.SchoolGameProgress(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, out.Games, 1)
	assert.Equal(t, 2, out.Games[0].Players)
	assert.Equal(t, int64(80), out.Games[0].TopScore)
}
