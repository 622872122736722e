package engine

import (
	"context"
	"database/sql"
	"strings"

	"arcadeops/internal/domain"
	"arcadeops/internal/events"
	"arcadeops/internal/repo"
)

const (
	GameUp   = "Up"
	GameDown = "Down"
)

func gameStatus(s string) (string, error) {
	switch token(s) {
	case "", "up":
		return GameUp, nil
	case "down":
		return GameDown, nil
	}
	return "", invalid("game status must be Up or Down, got %q", s)
}

type GameCreateOptions struct {
	FacilityID string
	Name       string
	Status     string
	DownReason string
	ActorID    string
}

func (e Engine) CreateGame(ctx context.Context, opts GameCreateOptions) (domain.Game, error) {
	facility, err := e.facility(opts.FacilityID)
	if err != nil {
		return domain.Game{}, err
	}
	name := cleanText(opts.Name)
	if name == "" {
		return domain.Game{}, invalid("game name is required")
	}
	status, err := gameStatus(opts.Status)
	if err != nil {
		return domain.Game{}, err
	}
	g := domain.Game{FacilityID: facility, Name: name, Status: status, UpdatedAt: e.stamp()}
	if status == GameDown {
		g.DownReason = cleanText(opts.DownReason)
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if g, err = e.Repo.InsertGame(ctx, tx, g); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.GameCreated, FacilityID: facility, EntityKind: "game", EntityID: g.ID, ActorID: opts.ActorID,
			Payload: events.Payload{"name": g.Name, "status": g.Status},
		})
	})
	return g, err
}

type GameUpdateOptions struct {
	ID         string
	Name       *string
	Status     *string
	DownReason *string
	ActorID    string
}

// UpdateGame changes name or up/down status. Bringing a game back up clears its down reason.
func (e Engine) UpdateGame(ctx context.Context, opts GameUpdateOptions) (domain.Game, error) {
	var g domain.Game
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if g, err = e.Repo.GetGame(ctx, tx, opts.ID); err != nil {
			return err
		}
		changes := events.Payload{}
		if opts.Name != nil {
			name := cleanText(*opts.Name)
			if name == "" {
				return invalid("game name is required")
			}
			g.Name = name
			changes["name"] = name
		}
		if opts.Status != nil {
			status, err := gameStatus(*opts.Status)
			if err != nil {
				return err
			}
			g.Status = status
			changes["status"] = status
		}
		if opts.DownReason != nil {
			g.DownReason = cleanText(*opts.DownReason)
			changes["down_reason"] = g.DownReason
		}
		if g.Status == GameUp {
			g.DownReason = ""
		}
		g.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateGame(ctx, tx, g); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.GameUpdated, FacilityID: g.FacilityID, EntityKind: "game", EntityID: g.ID, ActorID: opts.ActorID, Payload: changes,
		})
	})
	return g, err
}

func (e Engine) DeleteGame(ctx context.Context, id, actorID string) error {
	return e.inTx(ctx, func(tx *sql.Tx) error {
		g, err := e.Repo.GetGame(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := e.Repo.DeleteGame(ctx, tx, id); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.Entry{
			Type: events.GameDeleted, FacilityID: g.FacilityID, EntityKind: "game", EntityID: id, ActorID: actorID,
			Payload: events.Payload{"name": g.Name},
		})
	})
}

func (e Engine) ListGames(ctx context.Context, f repo.GameFilters) ([]domain.Game, error) {
	facility, err := e.facility(f.FacilityID)
	if err != nil {
		return nil, err
	}
	f.FacilityID = facility
	if f.Status != "" {
		if f.Status, err = gameStatus(f.Status); err != nil {
			return nil, err
		}
	}
	return e.Repo.ListGames(ctx, f)
}

// SearchGames is the search-as-you-type lookup: case-insensitive substring, capped at limit.
func (e Engine) SearchGames(ctx context.Context, query string, limit int) ([]domain.Game, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 8
	}
	return e.ListGames(ctx, repo.GameFilters{Query: query, Limit: limit})
}
