package services

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"

	"school-game-platform/models"
	"school-game-platform/storage"

	"github.com/gosimple/slug"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// AliasSeed lists identifiers a game client emits for the catalog game with Title.
type AliasSeed struct {
	Title       string   `yaml:"title"`
	Identifiers []string `yaml:"identifiers"`
}

type aliasSeedFile struct {
	Aliases []AliasSeed `yaml:"aliases"`
}

// LoadAliasSeeds reads the alias seed file. A missing file is not an error.
func LoadAliasSeeds(path string) ([]AliasSeed, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("ℹ️ [ALIASES] seed file %s not found, skipping", path)
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read alias seeds %s", path)
	}

	var file aliasSeedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Wrapf(err, "parse alias seeds %s", path)
	}
	return file.Aliases, nil
}

// NormalizeGameKey turns a free-form identifier ("Data Forge", " DATA FORGE ")
// into the lowercase hyphenated form game clients use.
func NormalizeGameKey(raw string) string {
	return slug.Make(strings.TrimSpace(raw))
}

// AliasesFor returns every alias a game should be reachable under: its own id,
// the slug of its title and any seeded identifiers whose title matches.
func AliasesFor(game models.Game, seeds []AliasSeed) []models.GameAlias {
	seen := map[string]bool{}
	var out []models.GameAlias
	add := func(alias string) {
		alias = strings.TrimSpace(alias)
		if alias == "" || seen[alias] {
			return
		}
		seen[alias] = true
		out = append(out, models.GameAlias{Alias: alias, GameID: game.ID})
	}

	add(game.ID)
	titleKey := NormalizeGameKey(game.Title)
	add(titleKey)
	for _, seed := range seeds {
		if titleKey == "" || NormalizeGameKey(seed.Title) != titleKey {
			continue
		}
		for _, id := range seed.Identifiers {
			add(id)
		}
	}
	return out
}

// Resolver is an immutable snapshot of the alias table used to map progress
// keys to catalog games.
type Resolver struct {
	aliases map[string]string
	games   map[string]models.Game
}

func NewResolver(games []models.Game, aliases []models.GameAlias) *Resolver {
	r := &Resolver{
		aliases: make(map[string]string, len(aliases)+len(games)),
		games:   make(map[string]models.Game, len(games)),
	}
	for _, g := range games {
		r.games[g.ID] = g
		r.aliases[g.ID] = g.ID
	}
	for _, a := range aliases {
		if _, ok := r.games[a.GameID]; ok {
			r.aliases[a.Alias] = a.GameID
		}
	}
	return r
}

// LoadResolver snapshots the catalog and alias table.
func LoadResolver(ctx context.Context, repo storage.GameRepository) (*Resolver, error) {
	games, err := repo.ListGames(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list games")
	}
	aliases, err := repo.ListAliases(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list game aliases")
	}
	return NewResolver(games, aliases), nil
}

// Resolve maps a raw key to a canonical game id, trying the key as given and
// then its normalized form.
func (r *Resolver) Resolve(raw string) (string, bool) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return "", false
	}
	if id, ok := r.aliases[key]; ok {
		return id, true
	}
	if norm := NormalizeGameKey(key); norm != key {
		if id, ok := r.aliases[norm]; ok {
			return id, true
		}
	}
	return "", false
}

func (r *Resolver) Game(id string) (models.Game, bool) {
	g, ok := r.games[id]
	return g, ok
}

// Display returns the id, title and image a progress key is shown under.
// Unresolved keys keep the raw key as id and get the placeholder title.
func (r *Resolver) Display(raw string) (id, title, image string, resolved bool) {
	gameID, ok := r.Resolve(raw)
	if !ok {
		return raw, models.UnknownGameTitle, "", false
	}
	g := r.games[gameID]
	return g.ID, g.Title, g.MainLogoURL, true
}

// Aliases lists the snapshot's alias keys for one game, sorted.
func (r *Resolver) Aliases(gameID string) []string {
	var out []string
	for alias, id := range r.aliases {
		if id == gameID {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}
