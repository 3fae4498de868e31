package models

// SchoolStats is the school admin dashboard payload. Never persisted, except
// as a short-lived cache entry.
type SchoolStats struct {
	SchoolID                 string `json:"school_id"`
	RegisteredStudents       int    `json:"registered_students"`
	TotalBadges              int64  `json:"total_badges"`
	TotalCertificates        int64  `json:"total_certificates"`
	StudentsWithBadges       int    `json:"students_with_badges"`
	StudentsWithCertificates int    `json:"students_with_certificates"`
	TotalGameAttempts        int64  `json:"total_game_attempts"`

	// Stage-level certificate flags sent by game clients. Reported on their
	// own and never folded into TotalCertificates.
	CompletionCertificates int64 `json:"completion_certificates"`

	TopPerformers  []PerformerEntry `json:"top_performers"`
	FavoriteGames  []FavoriteGame   `json:"favorite_games"`
	TopPlayedGames []PlayedGame     `json:"top_played_games"`
}

type PerformerEntry struct {
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	AvatarURL    string `json:"avatar_url,omitempty"`
	Score        int64  `json:"score"`
	Badges       int64  `json:"badges"`
	Certificates int64  `json:"certificates"`
	Attempts     int64  `json:"attempts"`
}

type FavoriteGame struct {
	GameID        string  `json:"game_id"`
	Title         string  `json:"title"`
	ImageURL      string  `json:"image_url,omitempty"`
	AverageRating float64 `json:"average_rating"`
	RatingCount   int64   `json:"rating_count"`
}

type PlayedGame struct {
	GameID   string `json:"game_id"`
	Title    string `json:"title"`
	ImageURL string `json:"image_url,omitempty"`
	Players  int    `json:"players"`
	Resolved bool   `json:"resolved"`
}

// GameProgressRow is one game in the school-wide games progress listing.
type GameProgressRow struct {
	GameID                 string `json:"game_id"`
	Title                  string `json:"title"`
	ImageURL               string `json:"image_url,omitempty"`
	Resolved               bool   `json:"resolved"`
	Players                int    `json:"players"`
	Badges                 int64  `json:"badges"`
	Certificates           int64  `json:"certificates"`
	Attempts               int64  `json:"attempts"`
	CompletionCertificates int64  `json:"completion_certificates"`
	TopScore               int64  `json:"top_score"`
}

type SchoolGameProgress struct {
	SchoolID string            `json:"school_id"`
	Games    []GameProgressRow `json:"games"`
}

// StudentGameSummary is one game in a student's profile summary.
type StudentGameSummary struct {
	GameKey      string `json:"game_key"`
	GameID       string `json:"game_id,omitempty"`
	Title        string `json:"title"`
	Resolved     bool   `json:"resolved"`
	Badges       int64  `json:"badges"`
	Certificates int64  `json:"certificates"`
	Attempts     int64  `json:"attempts"`
	Score        int64  `json:"score"`
	XP           int64  `json:"xp"`
}

type StudentSummary struct {
	UserID                 string               `json:"user_id"`
	SchoolID               string               `json:"school_id"`
	Name                   string               `json:"name"`
	TotalBadges            int64                `json:"total_badges"`
	TotalCertificates      int64                `json:"total_certificates"`
	CompletionCertificates int64                `json:"completion_certificates"`
	TotalGameAttempts      int64                `json:"total_game_attempts"`
	TotalScore             int64                `json:"total_score"`
	TotalXP                int64                `json:"total_xp"`
	Games                  []StudentGameSummary `json:"games"`
}
