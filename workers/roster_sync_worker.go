// workers/roster_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"school-game-platform/models"
	"school-game-platform/storage"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// RemoteSchool matches a school in the school-management sync response.
type RemoteSchool struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RemoteStudent matches a student account in the sync response. ID is the
// same user id the gateway forwards in X-User-ID.
type RemoteStudent struct {
	ID        string    `json:"id"`
	SchoolID  string    `json:"school_id"`
	Username  string    `json:"username"`
	FirstName *string   `json:"first_name,omitempty"`
	LastName  *string   `json:"last_name,omitempty"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	Approved  bool      `json:"approved"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RosterChangesResponse is the top-level structure of the sync response.
type RosterChangesResponse struct {
	Schools  []RemoteSchool  `json:"schools"`
	Students []RemoteStudent `json:"students"`
}

// RosterSyncResult summarises one sync batch.
type RosterSyncResult struct {
	Schools  int
	Students int
	Skipped  int
}

// RosterSyncWorker mirrors schools and students from the school-management
// service so dashboards can list a school's approved students locally.
type RosterSyncWorker struct {
	roster       storage.RosterRepository
	interval     time.Duration
	baseURL      string // e.g., "http://localhost:8500"
	endpointPath string // e.g., "/api/v1/public/rosters"
	serviceToken string
	httpClient   *http.Client
}

func NewRosterSyncWorker(roster storage.RosterRepository, baseURL, endpointPath, serviceToken string, interval time.Duration) *RosterSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &RosterSyncWorker{
		roster:       roster,
		interval:     interval,
		baseURL:      baseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *RosterSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Roster Sync Worker (school-management → schools/students)…")
	go w.run(ctx)
}

func (w *RosterSyncWorker) run(ctx context.Context) {
	// Initial sync backfills everything
	if _, err := w.SyncBatch(ctx, time.Time{}); err != nil {
		log.Printf("⚠️ Initial roster sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncBatch(ctx, w.lastSyncTime(ctx)); err != nil {
				log.Printf("❌ Roster sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Roster Sync Worker stopped")
			return
		}
	}
}

// lastSyncTime is the newest local roster update, or the epoch.
func (w *RosterSyncWorker) lastSyncTime(ctx context.Context) time.Time {
	latest, err := w.roster.LatestRosterUpdate(ctx)
	if err != nil || latest.IsZero() {
		return time.Unix(0, 0)
	}
	return latest
}

// SyncBatch fetches roster changes since the given time and upserts them.
func (w *RosterSyncWorker) SyncBatch(ctx context.Context, since time.Time) (RosterSyncResult, error) {
	var result RosterSyncResult
	sinceStr := since.UTC().Format(time.RFC3339)

	base, err := url.Parse(w.baseURL)
	if err != nil {
		return result, errors.Wrapf(err, "invalid roster sync URL %q", w.baseURL)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", sinceStr)
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	log.Printf("[SYNC] ➡️  GET %s", finalURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return result, errors.Wrapf(err, "create request to %s", finalURL)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)
	req.Header.Set("Accept", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return result, errors.Wrap(err, "roster sync request failed")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Printf("[SYNC] ❌ Roster service returned %d for %s: %s", resp.StatusCode, finalURL, string(body))
		return result, errors.Errorf("roster service non-200 response: %d: %s", resp.StatusCode, string(body))
	}

	var changes RosterChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&changes); err != nil {
		return result, errors.Wrap(err, "decode roster response")
	}

	if len(changes.Schools) == 0 && len(changes.Students) == 0 {
		log.Printf("[SYNC] ✅ No roster changes since %s", sinceStr)
		return result, nil
	}

	schools := make([]models.School, 0, len(changes.Schools))
	for _, rs := range changes.Schools {
		if rs.ID == "" {
			result.Skipped++
			continue
		}
		school := models.School{ID: rs.ID, Name: rs.Name}
		school.CreatedAt = rs.CreatedAt
		school.UpdatedAt = rs.UpdatedAt
		if rs.Deleted {
			school.DeletedAt = gorm.DeletedAt{Time: rs.UpdatedAt, Valid: true}
		}
		schools = append(schools, school)
	}

	students := make([]models.Student, 0, len(changes.Students))
	for _, rs := range changes.Students {
		if rs.ID == "" || rs.SchoolID == "" {
			result.Skipped++
			log.Printf("[SYNC] ⚠️ Skipping student without id or school (id=%q, username=%q)", rs.ID, rs.Username)
			continue
		}
		student := models.Student{
			ID:        rs.ID,
			SchoolID:  rs.SchoolID,
			Username:  rs.Username,
			FirstName: rs.FirstName,
			LastName:  rs.LastName,
			AvatarURL: rs.AvatarURL,
			Approved:  rs.Approved,
			CreatedAt: rs.CreatedAt,
			UpdatedAt: rs.UpdatedAt,
		}
		if rs.Deleted {
			student.DeletedAt = gorm.DeletedAt{Time: rs.UpdatedAt, Valid: true}
		}
		students = append(students, student)
	}

	if err := w.roster.UpsertSchools(ctx, schools); err != nil {
		return result, errors.Wrap(err, "upsert schools")
	}
	result.Schools = len(schools)

	if err := w.roster.UpsertStudents(ctx, students); err != nil {
		return result, errors.Wrap(err, "upsert students")
	}
	result.Students = len(students)

	log.Printf("[SYNC] ✅ Synced %d school(s), %d student(s), skipped %d", result.Schools, result.Students, result.Skipped)
	return result, nil
}
