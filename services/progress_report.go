package services

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"school-game-platform/models"
)

// RawProgressReport is the body a game client posts. Fields stay raw so a single
// malformed value is dropped instead of rejecting the whole report.
type RawProgressReport struct {
	Stage       json.RawMessage `json:"stage"`
	Score       json.RawMessage `json:"score"`
	Badge       json.RawMessage `json:"badge"`
	XP          json.RawMessage `json:"xp"`
	Status      json.RawMessage `json:"status"`
	Certificate json.RawMessage `json:"certificate"`
}

// ParseProgressReport decodes and normalises a report body.
func ParseProgressReport(body []byte) (models.ProgressReport, error) {
	var raw RawProgressReport
	if err := json.Unmarshal(body, &raw); err != nil {
		return models.ProgressReport{}, &ValidationError{Field: "body", Reason: "must be a JSON object"}
	}
	return raw.Normalize()
}

// Normalize enforces the only hard rule (a usable stage) and coerces the
// optional fields, silently discarding the ones that do not parse.
func (r RawProgressReport) Normalize() (models.ProgressReport, error) {
	if isAbsent(r.Stage) {
		return models.ProgressReport{}, &ValidationError{Field: "stage", Reason: "is required"}
	}
	stage, ok := rawInt(r.Stage)
	if !ok || stage < 0 || stage > math.MaxUint32 {
		return models.ProgressReport{}, &ValidationError{Field: "stage", Reason: "must be a non-negative integer"}
	}

	report := models.ProgressReport{Stage: models.LevelID(stage)}

	if n, ok := rawInt(r.Score); ok && n >= 0 {
		n = models.ClampLevelValue(n)
		report.Score = &n
	}
	if n, ok := rawInt(r.Badge); ok && n >= 0 && n <= math.MaxUint8 {
		tier := uint8(n)
		report.Badge = &tier
	}
	if n, ok := rawInt(r.XP); ok && n >= 0 {
		n = models.ClampLevelValue(n)
		report.XP = &n
	}
	if n, ok := rawInt(r.Status); ok {
		report.Status = &n
	}
	if b, ok := rawBool(r.Certificate); ok {
		report.Certificate = &b
	}
	return report, nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// rawScalar returns the text of a JSON number, bool or string value.
func rawScalar(raw json.RawMessage) (string, bool) {
	if isAbsent(raw) {
		return "", false
	}
	trimmed := bytes.TrimSpace(raw)
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", false
		}
		return strings.TrimSpace(s), true
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return "", false
	}
	return string(trimmed), true
}

// rawInt accepts integers, integral floats ("3.0") and numeric strings.
func rawInt(raw json.RawMessage) (int64, bool) {
	s, ok := rawScalar(raw)
	if !ok || s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

func rawBool(raw json.RawMessage) (bool, bool) {
	s, ok := rawScalar(raw)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, false
	}
	return b, true
}
