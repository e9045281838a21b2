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
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"teamplan/internal/app"
	"teamplan/internal/domain"
	"teamplan/internal/engine"
	"teamplan/internal/repo"
)

// ActorHeader names the caller recorded on events and saved plans.
const ActorHeader = "X-Actor-Id"

const defaultActor = "api"

// Config for the HTTP API handler.
type Config struct {
	Service  *app.Service
	BasePath string
	Logger   *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"dependency_cycle"`
	Message string         `json:"message" example:"dependency would create a cycle"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"sourceId\":\"p1\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope every operation returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the teamplan API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Service == nil {
		return nil, errors.New("server: service is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = cfg.Service.Logger
	}
	if logger == nil {
		logger = slog.Default()
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
	router.Use(middleware.RequestID)
	router.Use(requestLogger(logger))
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	hcfg := huma.DefaultConfig("Teamplan API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	svc := cfg.Service
	registerDocs(router, basePath)
	registerHealth(group)
	registerTeams(group, svc)
	registerProjects(group, svc)
	registerDependencies(group, svc)
	registerPrioritize(group, svc)
	registerPlans(group, svc)
	registerTransfer(group, svc)
	registerEvents(group, svc)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelDebug
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
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
	msg := err.Error()
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case errors.Is(err, repo.ErrCycle):
		return newAPIError(http.StatusConflict, "dependency_cycle", msg, nil)
	case errors.Is(err, repo.ErrDuplicate):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case errors.Is(err, repo.ErrInvalid), errors.Is(err, engine.ErrInvalidArgument):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
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

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
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
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Teamplan API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerTeams(api huma.API, svc *app.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-team",
		Method:        http.MethodPost,
		Path:          "/teams",
		Summary:       "Create team",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateTeamRequest `json:"body"`
	}) (*struct {
		Body domain.Team `json:"body"`
	}, error) {
		t, err := svc.Repo.CreateTeam(ctx, domain.Team{
			ID:       input.Body.ID,
			Name:     input.Body.Name,
			Capacity: input.Body.Capacity,
		}, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Team `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-teams",
		Method:      http.MethodGet,
		Path:        "/teams",
		Summary:     "List teams",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Team `json:"body"`
	}, error) {
		teams, err := svc.Repo.ListTeams(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Team `json:"body"`
		}{Body: nonNilSlice(teams)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-team",
		Method:      http.MethodGet,
		Path:        "/teams/{team_id}",
		Summary:     "Get team",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TeamID string `path:"team_id"`
	}) (*struct {
		Body domain.Team `json:"body"`
	}, error) {
		t, err := svc.Repo.GetTeam(ctx, input.TeamID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Team `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-team",
		Method:      http.MethodPatch,
		Path:        "/teams/{team_id}",
		Summary:     "Update team",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TeamID string            `path:"team_id"`
		Body   UpdateTeamRequest `json:"body"`
	}) (*struct {
		Body domain.Team `json:"body"`
	}, error) {
		t, err := svc.Repo.UpdateTeam(ctx, input.TeamID, repo.TeamUpdate{
			Name:     input.Body.Name,
			Capacity: input.Body.Capacity,
		}, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Team `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-team",
		Method:        http.MethodDelete,
		Path:          "/teams/{team_id}",
		Summary:       "Delete team with its projects",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TeamID string `path:"team_id"`
	}) (*struct{}, error) {
		if err := svc.Repo.DeleteTeam(ctx, input.TeamID, actorID(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerProjects(api huma.API, svc *app.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := svc.Repo.CreateProject(ctx, domain.Project{
			ID:     input.Body.ID,
			TeamID: input.Body.TeamID,
			Title:  input.Body.Title,
			Effort: input.Body.Effort,
			Value:  input.Body.Value,
		}, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, input *struct {
		TeamID string `query:"team_id"`
	}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		items, err := svc.Repo.ListProjects(ctx, input.TeamID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := svc.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		raw := rawBodyMap(ctx)
		u := repo.ProjectUpdate{
			TeamID: input.Body.TeamID,
			Title:  input.Body.Title,
			Effort: input.Body.Effort,
			Value:  input.Body.Value,
		}
		if v, ok := raw["effort"]; ok && isNullRaw(v) {
			u.ClearEffort = true
		}
		if v, ok := raw["value"]; ok && isNullRaw(v) {
			u.ClearValue = true
		}
		p, err := svc.Repo.UpdateProject(ctx, input.ProjectID, u, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}",
		Summary:       "Delete project and its dependencies",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		if err := svc.Repo.DeleteProject(ctx, input.ProjectID, actorID(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "copy-project",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/copy",
		Summary:       "Copy project to another team as a linked copy",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		Body      CopyProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := svc.Repo.CopyProject(ctx, input.ProjectID, input.Body.TeamID, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})
}

func registerDependencies(api huma.API, svc *app.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-dependencies",
		Method:      http.MethodGet,
		Path:        "/dependencies",
		Summary:     "List dependencies",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Dependency `json:"body"`
	}, error) {
		deps, err := svc.Repo.ListDependencies(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Dependency `json:"body"`
		}{Body: nonNilSlice(deps)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "link-dependency",
		Method:        http.MethodPost,
		Path:          "/dependencies",
		Summary:       "Link dependency",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body DependencyRequest `json:"body"`
	}) (*struct {
		Body domain.Dependency `json:"body"`
	}, error) {
		d, err := svc.Repo.LinkDependency(ctx, input.Body.SourceID, input.Body.TargetID, actorID(ctx))
		if err != nil {
			if errors.Is(err, repo.ErrCycle) {
				return nil, newAPIError(http.StatusConflict, "dependency_cycle", err.Error(), map[string]any{
					"sourceId": input.Body.SourceID,
					"targetId": input.Body.TargetID,
				})
			}
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Dependency `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "unlink-dependency",
		Method:        http.MethodDelete,
		Path:          "/dependencies",
		Summary:       "Unlink dependency",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SourceID string `query:"source_id"`
		TargetID string `query:"target_id"`
	}) (*struct{}, error) {
		if input.SourceID == "" || input.TargetID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "source_id and target_id are required", nil)
		}
		if err := svc.Repo.UnlinkDependency(ctx, input.SourceID, input.TargetID, actorID(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-dependency",
		Method:      http.MethodPost,
		Path:        "/dependencies/check",
		Summary:     "Check whether a dependency would create a cycle",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body DependencyRequest `json:"body"`
	}) (*struct {
		Body CycleCheckResponse `json:"body"`
	}, error) {
		if input.Body.SourceID == "" || input.Body.TargetID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "sourceId and targetId are required", nil)
		}
		cyc, err := svc.Repo.WouldCreateCycle(ctx, input.Body.SourceID, input.Body.TargetID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CycleCheckResponse `json:"body"`
		}{Body: CycleCheckResponse{WouldCreateCycle: cyc}}, nil
	})
}

func registerPrioritize(api huma.API, svc *app.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "prioritize",
		Method:      http.MethodPost,
		Path:        "/prioritize",
		Summary:     "Prioritize the given teams and projects",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body PrioritizeRequest `json:"body"`
	}) (*struct {
		Body PrioritizationResponse `json:"body"`
	}, error) {
		mode, err := modeOrDefault(svc, input.Body.Mode)
		if err != nil {
			return nil, handleError(err)
		}
		rep, err := svc.Engine.Run(ctx, mode, input.Body.Projects, input.Body.Teams, input.Body.Dependencies)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PrioritizationResponse `json:"body"`
		}{Body: prioritizationResponse(rep)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "workspace-prioritize",
		Method:      http.MethodPost,
		Path:        "/workspace/prioritize",
		Summary:     "Prioritize the stored workspace",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body WorkspacePrioritizeRequest `json:"body"`
	}) (*struct {
		Body PrioritizationResponse `json:"body"`
	}, error) {
		mode, err := modeOrDefault(svc, input.Body.Mode)
		if err != nil {
			return nil, handleError(err)
		}
		out, err := svc.Prioritize(ctx, app.PrioritizeOptions{
			Mode:    mode,
			Save:    input.Body.Save,
			ActorID: actorID(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := prioritizationResponse(out.Report)
		if out.Plan != nil {
			resp.PlanID = out.Plan.ID
		}
		return &struct {
			Body PrioritizationResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerPlans(api huma.API, svc *app.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-plans",
		Method:      http.MethodGet,
		Path:        "/plans",
		Summary:     "List saved plans, newest first",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50"`
	}) (*struct {
		Body []PlanSummary `json:"body"`
	}, error) {
		plans, err := svc.Repo.ListPlans(ctx, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]PlanSummary, 0, len(plans))
		for _, p := range plans {
			res = append(res, planSummary(p))
		}
		return &struct {
			Body []PlanSummary `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-plan",
		Method:      http.MethodGet,
		Path:        "/plans/{plan_id}",
		Summary:     "Get saved plan",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PlanID string `path:"plan_id"`
	}) (*struct {
		Body domain.Plan `json:"body"`
	}, error) {
		p, err := svc.Repo.GetPlan(ctx, input.PlanID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Plan `json:"body"`
		}{Body: p}, nil
	})
}

func registerTransfer(api huma.API, svc *app.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "export-workspace",
		Method:      http.MethodGet,
		Path:        "/export",
		Summary:     "Export the workspace",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.ImportFile `json:"body"`
	}, error) {
		f, err := svc.Repo.Export(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ImportFile `json:"body"`
		}{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-workspace",
		Method:      http.MethodPost,
		Path:        "/import",
		Summary:     "Import teams, projects and dependencies",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body ImportRequest `json:"body"`
	}) (*struct {
		Body repo.ImportStats `json:"body"`
	}, error) {
		stats, err := svc.Repo.Import(ctx, input.Body.File, input.Body.Replace, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body repo.ImportStats `json:"body"`
		}{Body: stats}, nil
	})
}

func registerEvents(api huma.API, svc *app.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"team,project,dependency,workspace,plan"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var before int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			before = parsed
		}
		items, err := svc.Repo.LatestEvents(ctx, limit+1, repo.EventFilter{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Before:     before,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func modeOrDefault(svc *app.Service, raw string) (engine.Mode, error) {
	if strings.TrimSpace(raw) == "" {
		return svc.DefaultMode(), nil
	}
	return engine.ParseMode(raw)
}

func actorID(ctx context.Context) string {
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return defaultActor
	}
	if id := strings.TrimSpace(req.Header.Get(ActorHeader)); id != "" {
		return id
	}
	return defaultActor
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

func rawBodyMap(ctx context.Context) map[string]json.RawMessage {
	data := bodyBytes(ctx)
	if len(data) == 0 {
		return map[string]json.RawMessage{}
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return map[string]json.RawMessage{}
	}
	return obj
}

func isNullRaw(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && bytes.Equal(trimmed, []byte("null"))
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
