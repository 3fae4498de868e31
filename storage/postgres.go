package storage

import (
	"context"
	"database/sql"
	"log"
	"time"

	"school-game-platform/models"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// PostgresStore implements Store on top of gorm.
type PostgresStore struct {
	DB *gorm.DB
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects, sizes the pool and migrates the schema.
func OpenPostgres(dsn string, debug bool) (*PostgresStore, error) {
	logMode := logger.Warn
	if debug {
		logMode = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logMode),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get database instance")
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	store := &PostgresStore{DB: db}
	if err := store.Migrate(); err != nil {
		return nil, err
	}

	log.Println("✅ PostgreSQL store ready")
	return store, nil
}

// Migrate creates or updates every table the service owns.
func (s *PostgresStore) Migrate() error {
	if err := s.DB.AutoMigrate(
		&models.School{},
		&models.Student{},
		&models.Game{},
		&models.GameAlias{},
		&models.GameRating{},
		&models.LevelProgress{},
		&models.ProgressEvent{},
	); err != nil {
		return errors.Wrap(err, "failed to migrate database")
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return errors.Wrap(err, "failed to close database")
	}
	log.Println("Database connection closed")
	return nil
}

// ===== Progress =====

func (s *PostgresStore) GetGameProgress(ctx context.Context, userID, gameKey string) (models.GameProgress, error) {
	var rows []models.LevelProgress
	if err := s.DB.WithContext(ctx).
		Where("user_id = ? AND game_key = ?", userID, gameKey).
		Find(&rows).Error; err != nil {
		return models.GameProgress{}, err
	}

	progress := models.NewGameProgress()
	for _, r := range rows {
		progress.Levels[models.LevelID(r.LevelID)] = r.State()
	}
	return progress, nil
}

func (s *PostgresStore) GetAllProgress(ctx context.Context, userID string) (map[string]models.GameProgress, error) {
	byUser, err := s.GetProgressForUsers(ctx, []string{userID})
	if err != nil {
		return nil, err
	}
	if ledger, ok := byUser[userID]; ok {
		return ledger, nil
	}
	return map[string]models.GameProgress{}, nil
}

func (s *PostgresStore) GetProgressForUsers(ctx context.Context, userIDs []string) (map[string]map[string]models.GameProgress, error) {
	out := make(map[string]map[string]models.GameProgress, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	var rows []models.LevelProgress
	if err := s.DB.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Order("user_id, game_key, level_id").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	for _, r := range rows {
		ledger, ok := out[r.UserID]
		if !ok {
			ledger = make(map[string]models.GameProgress)
			out[r.UserID] = ledger
		}
		progress, ok := ledger[r.GameKey]
		if !ok {
			progress = models.NewGameProgress()
			ledger[r.GameKey] = progress
		}
		progress.Levels[models.LevelID(r.LevelID)] = r.State()
	}
	return out, nil
}

// MergeLevel runs the whole monotonic merge as one INSERT ... ON CONFLICT DO UPDATE,
// so concurrent reports for the same level can never lose a better value.
func (s *PostgresStore) MergeLevel(ctx context.Context, userID, gameKey string, level models.LevelID, delta models.LevelState) (models.LevelState, error) {
	row := models.LevelProgress{
		UserID:             userID,
		GameKey:            gameKey,
		LevelID:            uint32(level),
		Completed:          delta.Completed,
		HighScore:          models.ClampLevelValue(delta.HighScore),
		BadgeTier:          int16(delta.BadgeTier),
		XP:                 models.ClampLevelValue(delta.XP),
		CertificateAwarded: delta.CertificateAwarded,
	}

	var merged models.LevelProgress
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "game_key"}, {Name: "level_id"}},
			DoUpdates: clause.Set{
				{Column: clause.Column{Name: "completed"}, Value: gorm.Expr("level_progress.completed OR EXCLUDED.completed")},
				{Column: clause.Column{Name: "high_score"}, Value: gorm.Expr("GREATEST(level_progress.high_score, EXCLUDED.high_score)")},
				{Column: clause.Column{Name: "badge_tier"}, Value: gorm.Expr("GREATEST(level_progress.badge_tier, EXCLUDED.badge_tier)")},
				{Column: clause.Column{Name: "xp"}, Value: gorm.Expr("LEAST(level_progress.xp + EXCLUDED.xp, ?)", models.MaxLevelValue)},
				{Column: clause.Column{Name: "certificate_awarded"}, Value: gorm.Expr("level_progress.certificate_awarded OR EXCLUDED.certificate_awarded")},
				{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("EXCLUDED.updated_at")},
			},
		}).Create(&row).Error; err != nil {
			return err
		}

		return tx.Where("user_id = ? AND game_key = ? AND level_id = ?", userID, gameKey, uint32(level)).
			First(&merged).Error
	})
	if err != nil {
		return models.LevelState{}, err
	}
	return merged.State(), nil
}

func (s *PostgresStore) RecordEvent(ctx context.Context, event *models.ProgressEvent) error {
	return s.DB.WithContext(ctx).Create(event).Error
}

// ===== Roster =====

func (s *PostgresStore) GetSchool(ctx context.Context, id string) (*models.School, error) {
	var school models.School
	if err := s.DB.WithContext(ctx).First(&school, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &school, nil
}

func (s *PostgresStore) ListSchools(ctx context.Context) ([]models.School, error) {
	var schools []models.School
	err := s.DB.WithContext(ctx).Order("name").Find(&schools).Error
	return schools, err
}

func (s *PostgresStore) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	if err := s.DB.WithContext(ctx).First(&student, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &student, nil
}

func (s *PostgresStore) ListApprovedStudents(ctx context.Context, schoolID string) ([]models.Student, error) {
	var students []models.Student
	err := s.DB.WithContext(ctx).
		Where("school_id = ? AND approved = ?", schoolID, true).
		Order("created_at, id").
		Find(&students).Error
	return students, err
}

func (s *PostgresStore) UpsertSchools(ctx context.Context, schools []models.School) error {
	if len(schools) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at", "deleted_at"}),
	}).Create(&schools).Error
}

func (s *PostgresStore) UpsertStudents(ctx context.Context, students []models.Student) error {
	if len(students) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"school_id", "username", "first_name", "last_name", "avatar_url",
			"approved", "updated_at", "deleted_at",
		}),
	}).Create(&students).Error
}

func (s *PostgresStore) LatestRosterUpdate(ctx context.Context) (time.Time, error) {
	var latest sql.NullTime
	err := s.DB.WithContext(ctx).Raw(`
		SELECT MAX(updated_at) FROM (
			SELECT updated_at FROM students
			UNION ALL
			SELECT updated_at FROM schools
		) AS roster`).Row().Scan(&latest)
	if err != nil || !latest.Valid {
		return time.Time{}, err
	}
	return latest.Time, nil
}

// ===== Games =====

func (s *PostgresStore) CreateGame(ctx context.Context, game *models.Game, aliases []models.GameAlias) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Aliases").Create(game).Error; err != nil {
			return err
		}
		if len(aliases) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&aliases).Error
	})
}

func (s *PostgresStore) GetGame(ctx context.Context, id string) (*models.Game, error) {
	var game models.Game
	if err := s.DB.WithContext(ctx).Preload("Aliases").First(&game, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &game, nil
}

func (s *PostgresStore) ListGames(ctx context.Context) ([]models.Game, error) {
	var games []models.Game
	err := s.DB.WithContext(ctx).Order("title").Find(&games).Error
	return games, err
}

func (s *PostgresStore) ListAliases(ctx context.Context) ([]models.GameAlias, error) {
	var aliases []models.GameAlias
	err := s.DB.WithContext(ctx).Order("alias").Find(&aliases).Error
	return aliases, err
}

func (s *PostgresStore) AddAliases(ctx context.Context, aliases []models.GameAlias) (int64, error) {
	if len(aliases) == 0 {
		return 0, nil
	}
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&aliases)
	return res.RowsAffected, res.Error
}

func (s *PostgresStore) UpsertRating(ctx context.Context, rating *models.GameRating) (*models.Game, error) {
	var game models.Game
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&game, "id = ?", rating.GameID).Error; err != nil {
			return err
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "game_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"rating", "comment", "updated_at"}),
		}).Create(rating).Error; err != nil {
			return err
		}

		// Recalculate rating aggregate
		var agg struct {
			Avg   float64
			Count int64
		}
		if err := tx.Model(&models.GameRating{}).
			Where("game_id = ?", rating.GameID).
			Select("COALESCE(AVG(rating), 0) AS avg, COUNT(*) AS count").
			Scan(&agg).Error; err != nil {
			return err
		}

		game.AverageRating = agg.Avg
		game.RatingCount = agg.Count
		return tx.Model(&models.Game{}).Where("id = ?", game.ID).Updates(map[string]interface{}{
			"average_rating": agg.Avg,
			"rating_count":   agg.Count,
		}).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &game, nil
}

func (s *PostgresStore) SchoolRatings(ctx context.Context, schoolID string) ([]models.GameRatingAggregate, error) {
	var out []models.GameRatingAggregate
	err := s.DB.WithContext(ctx).Raw(`
		SELECT r.game_id, AVG(r.rating) AS average_rating, COUNT(*) AS rating_count
		FROM game_ratings r
		INNER JOIN students st ON st.id = r.user_id
		WHERE st.school_id = ? AND st.approved = TRUE AND st.deleted_at IS NULL
		GROUP BY r.game_id
	`, schoolID).Scan(&out).Error
	return out, err
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
