package models

import (
	"math"
	"sort"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LevelID identifies one stage of one game.
type LevelID uint32

// StatusCompleted is the report status a game client sends when a stage is finished.
const StatusCompleted = 2

// MaxLevelValue bounds a stage's high score and accumulated XP.
const MaxLevelValue int64 = math.MaxUint32

// ClampLevelValue pins n into 0..MaxLevelValue.
func ClampLevelValue(n int64) int64 {
	if n < 0 {
		return 0
	}
	if n > MaxLevelValue {
		return MaxLevelValue
	}
	return n
}

// SaturatingAdd adds two non-negative totals, sticking at math.MaxInt64.
func SaturatingAdd(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// LevelState is everything recorded for one student on one stage.
// Completed and CertificateAwarded never go back to false, HighScore and
// BadgeTier never decrease, XP only accumulates.
type LevelState struct {
	Completed          bool  `json:"completed"`
	HighScore          int64 `json:"high_score"`
	BadgeTier          uint8 `json:"badge_tier"`
	XP                 int64 `json:"xp"`
	CertificateAwarded bool  `json:"certificate_awarded"`
}

// HasBadge reports whether any badge tier was earned on the stage.
func (l LevelState) HasBadge() bool { return l.BadgeTier > 0 }

// GameProgress is one student's ledger for one game.
type GameProgress struct {
	Levels map[LevelID]LevelState `json:"levels"`
}

// NewGameProgress returns an empty ledger, the value handed out for games
// the student never reported on.
func NewGameProgress() GameProgress {
	return GameProgress{Levels: make(map[LevelID]LevelState)}
}

// Level returns the stage state, zero valued when absent.
func (g GameProgress) Level(id LevelID) LevelState {
	return g.Levels[id]
}

// LevelIDs returns stage ids in ascending order.
func (g GameProgress) LevelIDs() []LevelID {
	ids := make([]LevelID, 0, len(g.Levels))
	for id := range g.Levels {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (g GameProgress) BadgeCount() int64 {
	var n int64
	for _, l := range g.Levels {
		if l.HasBadge() {
			n++
		}
	}
	return n
}

// CompletedCount is the number of completed stages, which dashboards report as attempts.
func (g GameProgress) CompletedCount() int64 {
	var n int64
	for _, l := range g.Levels {
		if l.Completed {
			n++
		}
	}
	return n
}

func (g GameProgress) ScoreTotal() int64 {
	var n int64
	for _, l := range g.Levels {
		n = SaturatingAdd(n, l.HighScore)
	}
	return n
}

func (g GameProgress) XPTotal() int64 {
	var n int64
	for _, l := range g.Levels {
		n = SaturatingAdd(n, l.XP)
	}
	return n
}

// CertificateFlags counts stages carrying an explicitly awarded completion certificate.
func (g GameProgress) CertificateFlags() int64 {
	var n int64
	for _, l := range g.Levels {
		if l.CertificateAwarded {
			n++
		}
	}
	return n
}

// ProgressReport is a validated, normalised report from a game client.
// Nil fields were absent or malformed and leave the stored state untouched.
type ProgressReport struct {
	Stage       LevelID
	Score       *int64
	Badge       *uint8
	XP          *int64
	Status      *int64
	Certificate *bool
}

// Delta converts a report into the merge applied to the stored LevelState.
func (r ProgressReport) Delta() LevelState {
	var d LevelState
	if r.Status != nil && *r.Status == StatusCompleted {
		d.Completed = true
	}
	if r.Score != nil {
		d.HighScore = *r.Score
	}
	if r.Badge != nil {
		d.BadgeTier = *r.Badge
	}
	if r.XP != nil {
		d.XP = *r.XP
	}
	if r.Certificate != nil && *r.Certificate {
		d.CertificateAwarded = true
	}
	return d
}

// Merge applies a delta under the monotonic rules and returns the new state.
// Score and XP saturate at MaxLevelValue.
func (l LevelState) Merge(d LevelState) LevelState {
	out := l
	out.Completed = l.Completed || d.Completed
	if score := ClampLevelValue(d.HighScore); score > l.HighScore {
		out.HighScore = score
	}
	if d.BadgeTier > l.BadgeTier {
		out.BadgeTier = d.BadgeTier
	}
	out.XP = ClampLevelValue(ClampLevelValue(l.XP) + ClampLevelValue(d.XP))
	out.CertificateAwarded = l.CertificateAwarded || d.CertificateAwarded
	return out
}

// LevelProgress is the persisted row behind a LevelState.
type LevelProgress struct {
	UserID             string `gorm:"primaryKey;index:idx_level_progress_user" json:"user_id"`
	GameKey            string `gorm:"primaryKey" json:"game_key"`
	LevelID            uint32 `gorm:"primaryKey" json:"level_id"`
	Completed          bool   `gorm:"not null;default:false" json:"completed"`
	HighScore          int64  `gorm:"not null;default:0" json:"high_score"`
	BadgeTier          int16  `gorm:"not null;default:0" json:"badge_tier"`
	XP                 int64  `gorm:"column:xp;not null;default:0" json:"xp"`
	CertificateAwarded bool   `gorm:"not null;default:false" json:"certificate_awarded"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (LevelProgress) TableName() string { return "level_progress" }

func (p LevelProgress) State() LevelState {
	tier := p.BadgeTier
	if tier < 0 {
		tier = 0
	}
	if tier > 255 {
		tier = 255
	}
	return LevelState{
		Completed:          p.Completed,
		HighScore:          ClampLevelValue(p.HighScore),
		BadgeTier:          uint8(tier),
		XP:                 ClampLevelValue(p.XP),
		CertificateAwarded: p.CertificateAwarded,
	}
}

// ProgressEvent is the append-only ledger of raw reports as received.
type ProgressEvent struct {
	ID         string         `gorm:"primaryKey" json:"id"`
	UserID     string         `gorm:"not null;index:idx_progress_event_user_time,priority:1" json:"user_id"`
	GameKey    string         `gorm:"not null;index" json:"game_key"`
	LevelID    uint32         `gorm:"not null" json:"level_id"`
	Payload    datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	ReceivedAt time.Time      `gorm:"not null;index:idx_progress_event_user_time,priority:2" json:"received_at"`
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
