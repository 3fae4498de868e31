package services

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"strings"

	"school-game-platform/models"
	"school-game-platform/storage"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// AssetUploader stores artwork and returns its public URL.
type AssetUploader interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// GameService manages the catalog, its alias table and ratings.
type GameService struct {
	Games  storage.GameRepository
	Seeds  []AliasSeed
	Assets AssetUploader
}

func NewGameService(games storage.GameRepository, seeds []AliasSeed, assets AssetUploader) *GameService {
	return &GameService{Games: games, Seeds: seeds, Assets: assets}
}

type CreateGameInput struct {
	Title       string   `json:"title" form:"title" validate:"notblank,max=200"`
	Category    string   `json:"category" form:"category" validate:"max=100"`
	Description string   `json:"description" form:"description"`
	MainLogoURL string   `json:"main_logo_url" form:"main_logo_url" validate:"omitempty,url"`
	PlayLink    string   `json:"play_link" form:"play_link" validate:"omitempty,url"`
	Status      string   `json:"status" form:"status" validate:"omitempty,oneof=draft published"`
	Aliases     []string `json:"aliases" form:"aliases" validate:"max=50,dive,notblank,max=100"`
}

// Upload is an optional file attached to a request.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

type RatingInput struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=1000"`
}

type AliasInput struct {
	Alias string `json:"alias" validate:"notblank,max=100"`
}

// CreateGame registers a catalog game together with its aliases: its id, the
// slug of its title, seeded identifiers for that title and any extra aliases
// supplied by the caller.
func (s *GameService) CreateGame(ctx context.Context, in CreateGameInput, logo *Upload) (*models.Game, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	game := &models.Game{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		Category:    strings.TrimSpace(in.Category),
		Description: in.Description,
		MainLogoURL: in.MainLogoURL,
		PlayLink:    in.PlayLink,
		Status:      in.Status,
	}
	if game.Status == "" {
		game.Status = models.GameStatusPublished
	}

	if logo != nil {
		if s.Assets == nil {
			return nil, &ValidationError{Field: "main_logo", Reason: "uploads are not configured"}
		}
		ext := strings.ToLower(filepath.Ext(logo.Filename))
		if ext == "" {
			ext = ".png"
		}
		url, err := s.Assets.Upload(ctx, "logos/"+uuid.NewString()+ext, logo.Body, logo.ContentType)
		if err != nil {
			return nil, errors.Wrap(err, "upload main logo")
		}
		game.MainLogoURL = url
	}

	aliases := AliasesFor(*game, s.Seeds)
	if len(in.Aliases) > 0 {
		existing, err := s.aliasOwners(ctx)
		if err != nil {
			return nil, err
		}
		seen := map[string]bool{}
		for _, a := range aliases {
			seen[a.Alias] = true
		}
		for _, raw := range in.Aliases {
			alias := strings.TrimSpace(raw)
			if owner, taken := existing[alias]; taken {
				return nil, &ValidationError{Field: "aliases", Reason: "alias " + alias + " already belongs to game " + owner}
			}
			if seen[alias] {
				continue
			}
			seen[alias] = true
			aliases = append(aliases, models.GameAlias{Alias: alias, GameID: game.ID})
		}
	}

	if err := s.Games.CreateGame(ctx, game, aliases); err != nil {
		return nil, errors.Wrap(err, "create game")
	}

	log.Printf("✅ [GAMES] created %s (%s) with %d aliases", game.Title, game.ID, len(aliases))
	return s.GetGame(ctx, game.ID)
}

func (s *GameService) GetGame(ctx context.Context, id string) (*models.Game, error) {
	game, err := s.Games.GetGame(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "game", id)
	}
	return game, nil
}

func (s *GameService) ListGames(ctx context.Context) ([]models.Game, error) {
	games, err := s.Games.ListGames(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list games")
	}
	return games, nil
}

// AddAlias maps an extra client identifier to a game. Re-adding an alias the
// game already owns is a no-op; stealing another game's alias is rejected.
func (s *GameService) AddAlias(ctx context.Context, gameID string, in AliasInput) (*models.GameAlias, bool, error) {
	if err := validateInput(in); err != nil {
		return nil, false, err
	}
	if _, err := s.GetGame(ctx, gameID); err != nil {
		return nil, false, err
	}

	alias := models.GameAlias{Alias: strings.TrimSpace(in.Alias), GameID: gameID}
	owners, err := s.aliasOwners(ctx)
	if err != nil {
		return nil, false, err
	}
	if owner, taken := owners[alias.Alias]; taken {
		if owner != gameID {
			return nil, false, &ValidationError{Field: "alias", Reason: "already belongs to game " + owner}
		}
		return &alias, false, nil
	}

	added, err := s.Games.AddAliases(ctx, []models.GameAlias{alias})
	if err != nil {
		return nil, false, errors.Wrap(err, "add alias")
	}
	return &alias, added > 0, nil
}

// RateGame stores the caller's rating, replacing an earlier one, and returns
// the game with its refreshed rating aggregate.
func (s *GameService) RateGame(ctx context.Context, gameID, userID string, in RatingInput) (*models.Game, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(userID) == "" {
		return nil, &ValidationError{Field: "user_id", Reason: "is required"}
	}

	game, err := s.Games.UpsertRating(ctx, &models.GameRating{
		ID:      uuid.NewString(),
		GameID:  gameID,
		UserID:  userID,
		Rating:  in.Rating,
		Comment: strings.TrimSpace(in.Comment),
	})
	if err != nil {
		return nil, notFoundOr(err, "game", gameID)
	}
	return game, nil
}

// BackfillAliases registers missing id, title-slug and seeded aliases for every
// catalog game, covering games inserted without going through CreateGame.
func (s *GameService) BackfillAliases(ctx context.Context) (int64, error) {
	games, err := s.Games.ListGames(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list games")
	}
	owners, err := s.aliasOwners(ctx)
	if err != nil {
		return 0, err
	}

	var missing []models.GameAlias
	for _, g := range games {
		for _, a := range AliasesFor(g, s.Seeds) {
			if _, taken := owners[a.Alias]; taken {
				continue
			}
			owners[a.Alias] = a.GameID
			missing = append(missing, a)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	added, err := s.Games.AddAliases(ctx, missing)
	if err != nil {
		return 0, errors.Wrap(err, "add aliases")
	}
	return added, nil
}

func (s *GameService) aliasOwners(ctx context.Context) (map[string]string, error) {
	aliases, err := s.Games.ListAliases(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list game aliases")
	}
	owners := make(map[string]string, len(aliases))
	for _, a := range aliases {
		owners[a.Alias] = a.GameID
	}
	return owners, nil
}
