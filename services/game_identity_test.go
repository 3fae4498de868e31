package services

import (
	"os"
	"path/filepath"
	"testing"

	"school-game-platform/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAliasSeedsFromRepoFile(t *testing.T) {
	path := filepath.Join("..", "config", "game_aliases.yaml")
	if _, err := os.Stat(path); err != nil {
		t.Skipf("seed file not found: %s", path)
	}

	seeds, err := LoadAliasSeeds(path)
	require.NoError(t, err)

	byTitle := map[string][]string{}
	for _, s := range seeds {
		byTitle[s.Title] = s.Identifiers
	}
	assert.Equal(t, []string{"data-forge"}, byTitle["Data Forge"])
	assert.Equal(t, []string{"cyber-security"}, byTitle["Network Shield"])
}

func TestLoadAliasSeedsMissingAndBroken(t *testing.T) {
	seeds, err := LoadAliasSeeds(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, seeds)

	seeds, err = LoadAliasSeeds("")
	require.NoError(t, err)
	assert.Empty(t, seeds)

	broken := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("aliases: [title: {"), 0o600))
	_, err = LoadAliasSeeds(broken)
	assert.Error(t, err)
}

func TestAliasesFor(t *testing.T) {
	seeds := []AliasSeed{
		{Title: "Network Shield", Identifiers: []string{"cyber-security", "net-shield"}},
		{Title: "Data Forge", Identifiers: []string{"data-forge"}},
	}

	got := AliasesFor(models.Game{ID: "g-ns", Title: "Network  Shield"}, seeds)
	var names []string
	for _, a := range got {
		assert.Equal(t, "g-ns", a.GameID)
		names = append(names, a.Alias)
	}
	assert.Equal(t, []string{"g-ns", "network-shield", "cyber-security", "net-shield"}, names)

	// The title slug and the seeded identifier coincide; it is registered once.
	got = AliasesFor(models.Game{ID: "g-df", Title: "Data Forge"}, seeds)
	assert.Len(t, got, 2)
}

func TestResolver(t *testing.T) {
	games := []models.Game{
		{ID: "g-df", Title: "Data Forge", MainLogoURL: "https://cdn.example.com/df.png"},
		{ID: "g-ns", Title: "Network Shield"},
	}
	aliases := []models.GameAlias{
		{Alias: "data-forge", GameID: "g-df"},
		{Alias: "cyber-security", GameID: "g-ns"},
		{Alias: "orphan", GameID: "g-deleted"},
	}
	r := NewResolver(games, aliases)

	tests := []struct {
		raw    string
		wantID string
		wantOK bool
	}{
		{raw: "data-forge", wantID: "g-df", wantOK: true},
		{raw: "g-df", wantID: "g-df", wantOK: true},
		{raw: "Data Forge", wantID: "g-df", wantOK: true},
		{raw: " Cyber Security ", wantID: "g-ns", wantOK: true},
		{raw: "ghost-game", wantOK: false},
		{raw: "orphan", wantOK: false},
		{raw: "", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			id, ok := r.Resolve(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}

	id, title, image, resolved := r.Display("data-forge")
	assert.Equal(t, "g-df", id)
	assert.Equal(t, "Data Forge", title)
	assert.Equal(t, "https://cdn.example.com/df.png", image)
	assert.True(t, resolved)

	id, title, image, resolved = r.Display("ghost-game")
	assert.Equal(t, "ghost-game", id)
	assert.Equal(t, models.UnknownGameTitle, title)
	assert.Empty(t, image)
	assert.False(t, resolved)

	assert.Equal(t, []string{"data-forge", "g-df"}, r.Aliases("g-df"))
}
