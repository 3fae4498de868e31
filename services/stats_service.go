package services

import (
	"context"
	"log"
	"sort"

	"school-game-platform/models"
	"school-game-platform/storage"

	"github.com/pkg/errors"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const (
	TopPerformersLimit  = 5
	FavoriteGamesLimit  = 4
	TopPlayedGamesLimit = 4
)

// StatsService is the aggregation engine behind the school dashboards.
type StatsService struct {
	Progress storage.ProgressRepository
	Roster   storage.RosterRepository
	Games    storage.GameRepository
	Cache    StatsCache
}

func NewStatsService(progress storage.ProgressRepository, roster storage.RosterRepository, games storage.GameRepository, cache StatsCache) *StatsService {
	if cache == nil {
		cache = NoopStatsCache{}
	}
	return &StatsService{Progress: progress, Roster: roster, Games: games, Cache: cache}
}

// studentTally is one student's totals across every game they played.
type studentTally struct {
	student                models.Student
	badges                 int64
	score                  int64
	attempts               int64
	xp                     int64
	completionCertificates int64
}

func (t studentTally) certificates() int64 { return Certificates(t.badges) }

// gameTally is one game's totals across every student of a school.
type gameTally struct {
	id       string
	title    string
	image    string
	resolved bool
	players  map[string]struct{}

	badges                 int64
	attempts               int64
	completionCertificates int64
	topScore               int64
}

// schoolScan is the result of one pass over a school's progress ledger.
type schoolScan struct {
	school   *models.School
	resolver *Resolver
	students []studentTally
	games    map[string]*gameTally
}

// scanSchool walks every approved student's ledger once, grouping by student
// and by resolved game. Unresolvable keys are logged and counted under a
// placeholder, never returned as errors.
func (s *StatsService) scanSchool(ctx context.Context, schoolID string) (*schoolScan, error) {
	school, err := s.Roster.GetSchool(ctx, schoolID)
	if err != nil {
		return nil, notFoundOr(err, "school", schoolID)
	}

	students, err := s.Roster.ListApprovedStudents(ctx, schoolID)
	if err != nil {
		return nil, errors.Wrapf(err, "list students of school %s", schoolID)
	}

	ids := make([]string, 0, len(students))
	for _, st := range students {
		ids = append(ids, st.ID)
	}
	ledgers, err := s.Progress.GetProgressForUsers(ctx, ids)
	if err != nil {
		return nil, errors.Wrapf(err, "load progress of school %s", schoolID)
	}

	resolver, err := LoadResolver(ctx, s.Games)
	if err != nil {
		return nil, err
	}

	scan := &schoolScan{
		school:   school,
		resolver: resolver,
		students: make([]studentTally, 0, len(students)),
		games:    map[string]*gameTally{},
	}

	for _, st := range students {
		tally := studentTally{student: st}
		// one student's score per resolved game, summed over its aliases
		gameScores := map[*gameTally]int64{}
		for _, key := range sortedKeys(ledgers[st.ID]) {
			progress := ledgers[st.ID][key]

			badges := progress.BadgeCount()
			attempts := progress.CompletedCount()
			score := progress.ScoreTotal()
			flags := progress.CertificateFlags()

			tally.badges += badges
			tally.attempts += attempts
			tally.score = models.SaturatingAdd(tally.score, score)
			tally.xp = models.SaturatingAdd(tally.xp, progress.XPTotal())
			tally.completionCertificates += flags

			game := scan.game(key, st.ID)
			game.players[st.ID] = struct{}{}
			game.badges += badges
			game.attempts += attempts
			game.completionCertificates += flags
			gameScores[game] = models.SaturatingAdd(gameScores[game], score)
		}
		for game, score := range gameScores {
			if score > game.topScore {
				game.topScore = score
			}
		}
		scan.students = append(scan.students, tally)
	}
	return scan, nil
}

// game returns the tally a progress key belongs to, creating it on first use.
func (sc *schoolScan) game(key, userID string) *gameTally {
	id, title, image, resolved := sc.resolver.Display(key)
	if !resolved {
		logPartial(&PartialDataError{UserID: userID, GameKey: key, Reason: "no game alias matches this key"})
	}
	g, ok := sc.games[id]
	if !ok {
		g = &gameTally{id: id, title: title, image: image, resolved: resolved, players: map[string]struct{}{}}
		sc.games[id] = g
	}
	return g
}

func logPartial(err *PartialDataError) {
	log.Printf("⚠️ [STATS] %v", err)
}

// SchoolStats returns the dashboard for a school, served from cache when fresh.
func (s *StatsService) SchoolStats(ctx context.Context, schoolID string) (*models.SchoolStats, error) {
	if cached, ok := s.Cache.Get(ctx, schoolID); ok {
		return cached, nil
	}
	stats, err := s.ComputeSchoolStats(ctx, schoolID)
	if err != nil {
		return nil, err
	}
	s.Cache.Set(ctx, stats)
	return stats, nil
}

// ComputeSchoolStats aggregates every approved student of the school.
func (s *StatsService) ComputeSchoolStats(ctx context.Context, schoolID string) (*models.SchoolStats, error) {
	scan, err := s.scanSchool(ctx, schoolID)
	if err != nil {
		return nil, err
	}

	stats := &models.SchoolStats{
		SchoolID:           scan.school.ID,
		RegisteredStudents: len(scan.students),
		TopPerformers:      []models.PerformerEntry{},
		FavoriteGames:      []models.FavoriteGame{},
		TopPlayedGames:     []models.PlayedGame{},
	}

	for _, t := range scan.students {
		certs := t.certificates()
		stats.TotalBadges += t.badges
		stats.TotalCertificates += certs
		stats.TotalGameAttempts += t.attempts
		stats.CompletionCertificates += t.completionCertificates
		if t.badges > 0 {
			stats.StudentsWithBadges++
		}
		if certs > 0 {
			stats.StudentsWithCertificates++
		}
	}

	stats.TopPerformers = topPerformers(scan.students, TopPerformersLimit)
	stats.TopPlayedGames = topPlayed(scan.games, TopPlayedGamesLimit)

	favorites, err := s.favoriteGames(ctx, schoolID, scan.resolver, FavoriteGamesLimit)
	if err != nil {
		return nil, err
	}
	stats.FavoriteGames = favorites

	return stats, nil
}

// topPerformers orders by score, then display name under English collation,
// then user id, so equal scores always come back in the same order.
func topPerformers(students []studentTally, limit int) []models.PerformerEntry {
	entries := make([]models.PerformerEntry, 0, len(students))
	for _, t := range students {
		e := models.PerformerEntry{
			UserID:       t.student.ID,
			Name:         t.student.DisplayName(),
			Score:        t.score,
			Badges:       t.badges,
			Certificates: t.certificates(),
			Attempts:     t.attempts,
		}
		if t.student.AvatarURL != nil {
			e.AvatarURL = *t.student.AvatarURL
		}
		entries = append(entries, e)
	}

	col := collate.New(language.English, collate.IgnoreCase)
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if c := col.CompareString(a.Name, b.Name); c != 0 {
			return c < 0
		}
		return a.UserID < b.UserID
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

func topPlayed(games map[string]*gameTally, limit int) []models.PlayedGame {
	out := make([]models.PlayedGame, 0, len(games))
	for _, g := range games {
		out = append(out, models.PlayedGame{
			GameID:   g.id,
			Title:    g.title,
			ImageURL: g.image,
			Players:  len(g.players),
			Resolved: g.resolved,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Players != out[j].Players {
			return out[i].Players > out[j].Players
		}
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].GameID < out[j].GameID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// favoriteGames ranks games by the ratings this school's students gave them.
// It reads the rating aggregate only, never the progress ledger.
func (s *StatsService) favoriteGames(ctx context.Context, schoolID string, resolver *Resolver, limit int) ([]models.FavoriteGame, error) {
	ratings, err := s.Games.SchoolRatings(ctx, schoolID)
	if err != nil {
		return nil, errors.Wrapf(err, "load ratings of school %s", schoolID)
	}

	out := make([]models.FavoriteGame, 0, len(ratings))
	for _, r := range ratings {
		if r.RatingCount == 0 {
			continue
		}
		game, ok := resolver.Game(r.GameID)
		if !ok {
			log.Printf("⚠️ [STATS] rated game %s is no longer in the catalog", r.GameID)
			continue
		}
		out = append(out, models.FavoriteGame{
			GameID:        game.ID,
			Title:         game.Title,
			ImageURL:      game.MainLogoURL,
			AverageRating: r.AverageRating,
			RatingCount:   r.RatingCount,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.AverageRating != b.AverageRating {
			return a.AverageRating > b.AverageRating
		}
		if a.RatingCount != b.RatingCount {
			return a.RatingCount > b.RatingCount
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.GameID < b.GameID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SchoolGameProgress groups the school's ledger by game. Certificates here are
// floored from each game's badge total across all students, so they do not add
// up to the per-student certificate totals of the dashboard.
func (s *StatsService) SchoolGameProgress(ctx context.Context, schoolID string) (*models.SchoolGameProgress, error) {
	scan, err := s.scanSchool(ctx, schoolID)
	if err != nil {
		return nil, err
	}

	rows := make([]models.GameProgressRow, 0, len(scan.games))
	for _, g := range scan.games {
		rows = append(rows, models.GameProgressRow{
			GameID:                 g.id,
			Title:                  g.title,
			ImageURL:               g.image,
			Resolved:               g.resolved,
			Players:                len(g.players),
			Badges:                 g.badges,
			Certificates:           Certificates(g.badges),
			Attempts:               g.attempts,
			CompletionCertificates: g.completionCertificates,
			TopScore:               g.topScore,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Players != rows[j].Players {
			return rows[i].Players > rows[j].Players
		}
		if rows[i].Title != rows[j].Title {
			return rows[i].Title < rows[j].Title
		}
		return rows[i].GameID < rows[j].GameID
	})

	return &models.SchoolGameProgress{SchoolID: scan.school.ID, Games: rows}, nil
}

// StudentSummary totals one student's ledger. Per-game certificates are floored
// from that game's badges; the overall certificate total from all badges.
func (s *StatsService) StudentSummary(ctx context.Context, userID string) (*models.StudentSummary, error) {
	student, err := s.Roster.GetStudent(ctx, userID)
	if err != nil {
		return nil, notFoundOr(err, "student", userID)
	}

	ledger, err := s.Progress.GetAllProgress(ctx, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "load progress for %s", userID)
	}
	resolver, err := LoadResolver(ctx, s.Games)
	if err != nil {
		return nil, err
	}

	summary := &models.StudentSummary{
		UserID:   student.ID,
		SchoolID: student.SchoolID,
		Name:     student.DisplayName(),
		Games:    []models.StudentGameSummary{},
	}

	byGame := map[string]*models.StudentGameSummary{}
	var order []string
	for _, key := range sortedKeys(ledger) {
		progress := ledger[key]

		id, title, _, resolved := resolver.Display(key)
		if !resolved {
			logPartial(&PartialDataError{UserID: userID, GameKey: key, Reason: "no game alias matches this key"})
		}
		row, ok := byGame[id]
		if !ok {
			row = &models.StudentGameSummary{GameKey: key, Title: title, Resolved: resolved}
			if resolved {
				row.GameID = id
			}
			byGame[id] = row
			order = append(order, id)
		}

		row.Badges += progress.BadgeCount()
		row.Attempts += progress.CompletedCount()
		row.Score = models.SaturatingAdd(row.Score, progress.ScoreTotal())
		row.XP = models.SaturatingAdd(row.XP, progress.XPTotal())

		summary.TotalBadges += progress.BadgeCount()
		summary.TotalGameAttempts += progress.CompletedCount()
		summary.TotalScore = models.SaturatingAdd(summary.TotalScore, progress.ScoreTotal())
		summary.TotalXP = models.SaturatingAdd(summary.TotalXP, progress.XPTotal())
		summary.CompletionCertificates += progress.CertificateFlags()
	}

	for _, id := range order {
		row := byGame[id]
		row.Certificates = Certificates(row.Badges)
		summary.Games = append(summary.Games, *row)
	}
	sort.SliceStable(summary.Games, func(i, j int) bool {
		if summary.Games[i].Title != summary.Games[j].Title {
			return summary.Games[i].Title < summary.Games[j].Title
		}
		return summary.Games[i].GameKey < summary.Games[j].GameKey
	})
	summary.TotalCertificates = Certificates(summary.TotalBadges)

	return summary, nil
}

func sortedKeys(ledger map[string]models.GameProgress) []string {
	keys := make([]string, 0, len(ledger))
	for k := range ledger {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
