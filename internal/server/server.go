package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"arcadeops/internal/domain"
	"arcadeops/internal/engine"
	"arcadeops/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"duplicate_issue"`
	Message string         `json:"message" example:"duplicate issue: IS-004 is still Open"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"existing_id\":\"IS-004\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope shared by every endpoint.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the facility API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine.DB == nil {
		return nil, errors.New("server: engine has no database")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = cfg.Logger
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(bufferBody)
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Arcade Facility API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerGames(group, cfg.Engine)
	registerIssues(group, cfg.Engine)
	registerChecklistRuns(group, cfg.Engine)
	registerPMs(group, cfg.Engine)
	registerSettings(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var dup *engine.DuplicateIssueError
	if errors.As(err, &dup) {
		return newAPIError(http.StatusConflict, "duplicate_issue", err.Error(), map[string]any{
			"existing_id": dup.Existing.ID,
			"status":      dup.Existing.Status,
		})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrValidation) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrConfigMissing) {
		return newAPIError(http.StatusInternalServerError, "config_missing", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{Type: "http", Scheme: "bearer", BearerFormat: "JWT"}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{Type: "apiKey", In: "header", Name: "X-Api-Key"}
	security := []map[string][]string{{"bearerAuth": {}}, {"apiKeyAuth": {}}}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

type body[T any] struct {
	Body T `json:"body"`
}

func reply[T any](v T) *body[T] { return &body[T]{Body: v} }

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*body[map[string]string], error) {
		return reply(map[string]string{"status": "ok"}), nil
	})
}

func registerGames(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-games",
		Method:      http.MethodGet,
		Path:        "/games",
		Summary:     "List or search games",
		Description: "With q set this is the search-as-you-type lookup: case-insensitive substring, capped at limit (default 8).",
	}, func(ctx context.Context, input *struct {
		Query  string `query:"q"`
		Status string `query:"status" enum:"Up,Down,up,down"`
		Limit  int    `query:"limit"`
	}) (*body[[]GameSummary], error) {
		var (
			games []domain.Game
			err   error
		)
		if strings.TrimSpace(input.Query) != "" && input.Status == "" {
			games, err = e.SearchGames(ctx, input.Query, input.Limit)
		} else {
			games, err = e.ListGames(ctx, repo.GameFilters{Query: input.Query, Status: input.Status, Limit: input.Limit})
		}
		if err != nil {
			return nil, handleError(err)
		}
		return reply(gameSummaries(games)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-game",
		Method:        http.MethodPost,
		Path:          "/games",
		Summary:       "Add game",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *body[CreateGameRequest]) (*body[domain.Game], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		g, err := e.CreateGame(ctx, engine.GameCreateOptions{
			Name: input.Body.Name, Status: input.Body.Status, DownReason: input.Body.DownReason, ActorID: actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(g), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-game",
		Method:      http.MethodPatch,
		Path:        "/games/{game_id}",
		Summary:     "Update game",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GameID string `path:"game_id"`
		Body   UpdateGameRequest
	}) (*body[domain.Game], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		g, err := e.UpdateGame(ctx, engine.GameUpdateOptions{
			ID: input.GameID, Name: input.Body.Name, Status: input.Body.Status, DownReason: input.Body.DownReason, ActorID: actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(g), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-game",
		Method:        http.MethodDelete,
		Path:          "/games/{game_id}",
		Summary:       "Delete game",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GameID string `path:"game_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteGame(ctx, input.GameID, actorID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerIssues(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-issues",
		Method:      http.MethodGet,
		Path:        "/issues",
		Summary:     "List issues",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Area   string `query:"area"`
		GameID string `query:"game_id"`
		Query  string `query:"q"`
		Limit  int    `query:"limit" default:"50"`
	}) (*body[[]domain.Issue], error) {
		items, err := e.ListIssues(ctx, repo.IssueFilters{
			Status: input.Status, Area: input.Area, GameID: input.GameID, Query: input.Query, Limit: normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "issue-counts",
		Method:      http.MethodGet,
		Path:        "/issues/counts",
		Summary:     "Open and urgent issue counts",
	}, func(ctx context.Context, _ *struct{}) (*body[domain.IssueCounts], error) {
		counts, err := e.IssueCounts(ctx, "")
		if err != nil {
			return nil, handleError(err)
		}
		return reply(counts), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-issue",
		Method:        http.MethodPost,
		Path:          "/issues",
		Summary:       "Create issue",
		Description:   "Rejects an equivalent open issue with 409 duplicate_issue unless allow_duplicate is set.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *body[CreateIssueRequest]) (*body[domain.Issue], error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		is, err := e.CreateIssue(ctx, input.Body.options(actorID))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(is), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-issue",
		Method:      http.MethodGet,
		Path:        "/issues/{issue_id}",
		Summary:     "Get issue",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IssueID string `path:"issue_id"`
	}) (*body[domain.Issue], error) {
		is, err := e.Repo.GetIssue(ctx, nil, input.IssueID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(is), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-issue",
		Method:      http.MethodPatch,
		Path:        "/issues/{issue_id}",
		Summary:     "Update issue",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IssueID string `path:"issue_id"`
		Body    UpdateIssueRequest
	}) (*body[domain.Issue], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b := input.Body
		is, err := e.UpdateIssue(ctx, engine.IssueUpdateOptions{
			ID: input.IssueID, Area: b.Area, EquipmentLocation: b.EquipmentLocation, Category: b.Category,
			Priority: b.Priority, Description: b.Description, Notes: b.Notes, Status: b.Status,
			TargetDate: b.TargetDate, AssignedTo: b.AssignedTo, ActorID: actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(is), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-issue",
		Method:        http.MethodDelete,
		Path:          "/issues/{issue_id}",
		Summary:       "Delete issue",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IssueID string `path:"issue_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteIssue(ctx, input.IssueID, actorID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerChecklistRuns(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "save-checklist-run",
		Method:        http.MethodPost,
		Path:          "/checklist-runs",
		Summary:       "Persist a finished checklist run",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *body[SaveChecklistRunRequest]) (*body[domain.ChecklistRun], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		summary, err := input.Body.summary()
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		run, err := e.SaveChecklistRun(ctx, engine.RunSaveOptions{ActorID: actorID, Summary: summary})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(run), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "latest-checklist-run",
		Method:      http.MethodGet,
		Path:        "/checklist-runs/latest",
		Summary:     "Latest run and progress badge",
	}, func(ctx context.Context, _ *struct{}) (*body[engine.Progress], error) {
		p, err := e.ChecklistProgress(ctx, "")
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-checklist-runs",
		Method:      http.MethodGet,
		Path:        "/checklist-runs",
		Summary:     "Recent checklist runs",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"20"`
	}) (*body[[]domain.ChecklistRun], error) {
		runs, err := e.ListChecklistRuns(ctx, "", normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(runs)), nil
	})
}

func registerPMs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-pms",
		Method:      http.MethodGet,
		Path:        "/pms",
		Summary:     "List preventative maintenance logs",
	}, func(ctx context.Context, input *struct {
		GameName string `query:"game_name"`
		Limit    int    `query:"limit" default:"50"`
	}) (*body[[]domain.PMLog], error) {
		items, err := e.ListPMs(ctx, "", input.GameName, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "log-pm",
		Method:        http.MethodPost,
		Path:          "/pms",
		Summary:       "Log a PM",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *body[LogPMRequest]) (*body[domain.PMLog], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		by := input.Body.CompletedBy
		if by == "" {
			by = actorID
		}
		pm, err := e.LogPM(ctx, engine.PMLogOptions{
			GameName: input.Body.GameName, PMDate: input.Body.PMDate, Notes: input.Body.Notes, CompletedBy: by,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(pm), nil
	})
}

func registerSettings(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-tpt-settings",
		Method:      http.MethodGet,
		Path:        "/settings/tpt",
		Summary:     "Tickets-per-token targets",
	}, func(ctx context.Context, _ *struct{}) (*body[domain.TPTSettings], error) {
		s, err := e.TPTSettings(ctx, "")
		if err != nil {
			return nil, handleError(err)
		}
		return reply(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-tpt-settings",
		Method:      http.MethodPut,
		Path:        "/settings/tpt",
		Summary:     "Update tickets-per-token targets",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *body[domain.TPTSettings]) (*body[domain.TPTSettings], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.SetTPTSettings(ctx, "", input.Body, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(s), nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"facility,game,issue,checklist_run,pm,settings,api_key"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*body[paginatedEvents], error) {
		limit := normalizeLimit(input.Limit)
		var before int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			before = parsed
		}
		items, err := e.ListEvents(ctx, repo.EventFilters{
			Type: input.Type, EntityKind: input.EntityKind, EntityID: input.EntityID, Before: before, Limit: limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return reply(resp), nil
	})
}

// bufferBody reads the request body up front so handlers can tell an empty
// body from an omitted one; a body that cannot be read is a 400.
func bufferBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "", "could not read request body: "+err.Error(), nil))
			return
		}
		r.Body = io.NopCloser(bytes.NewBuffer(data))
		ctx := context.WithValue(r.Context(), requestKey{}, r)
		ctx = context.WithValue(ctx, bodyBytesKey{}, data)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
