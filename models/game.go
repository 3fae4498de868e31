// models/game.go
package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	GameStatusDraft     = "draft"
	GameStatusPublished = "published"
)

// UnknownGameTitle is shown for progress keys that no alias resolves.
const UnknownGameTitle = "Unknown Game"

// Game is the canonical catalog entry. Games themselves run as external
// iframe/WASM builds and only report progress back.
type Game struct {
	ID          string `json:"id" gorm:"primaryKey"`
	Title       string `json:"title" gorm:"not null"`
	Category    string `json:"category" gorm:"index"`
	Description string `json:"description"`

	// 🖼️ Media
	MainLogoURL string `json:"main_logo_url"`
	PlayLink    string `json:"play_link"`

	// 🌟 Rating aggregate, recomputed from GameRating rows
	AverageRating float64 `json:"average_rating" gorm:"default:0"`
	RatingCount   int64   `json:"rating_count" gorm:"default:0"`

	Status string `json:"status" gorm:"default:'published'"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`

	Aliases []GameAlias `json:"aliases,omitempty" gorm:"foreignKey:GameID"`
}

// GameAlias maps an identifier emitted by a game client (e.g. "cyber-security")
// to the canonical game. The canonical id is always registered as its own alias.
type GameAlias struct {
	Alias     string    `json:"alias" gorm:"primaryKey"`
	GameID    string    `json:"game_id" gorm:"index;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// GameRating is one student's rating of a game. A student has at most one
// rating per game; re-rating overwrites it.
type GameRating struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	GameID    string    `json:"game_id" gorm:"uniqueIndex:idx_rating_game_user;not null"`
	UserID    string    `json:"user_id" gorm:"uniqueIndex:idx_rating_game_user;not null"`
	Rating    int       `json:"rating" gorm:"check:rating >= 1 and rating <= 5"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GameRatingAggregate is the per-game rating summary restricted to one school.
type GameRatingAggregate struct {
	GameID        string  `json:"game_id"`
	AverageRating float64 `json:"average_rating"`
	RatingCount   int64   `json:"rating_count"`
}
