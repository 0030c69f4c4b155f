package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"portfolio/internal/analytics"
	"portfolio/internal/archive"
	"portfolio/internal/dates"
	"portfolio/internal/domain"
	"portfolio/internal/engine"
	"portfolio/internal/normalize"
	"portfolio/internal/repo"
	"portfolio/internal/variance"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *slog.Logger
	// Archive enables POST /projects/{project_id}/export when set.
	Archive *archive.Exporter
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"weight_unbalanced"`
	Message string         `json:"message" example:"task weights total 90, expected 100; save with force to accept"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"total\":90,\"expected\":100}"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the portfolio API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			msgs := make([]string, 0, len(errs))
			for _, err := range errs {
				msgs = append(msgs, err.Error())
			}
			details = map[string]any{"errors": msgs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestLogger(logger))
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Portfolio API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerProjects(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	registerMasterData(group, cfg.Engine)
	registerProgress(group, cfg.Engine)
	registerImport(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	if cfg.Archive != nil {
		registerExport(group, cfg.Engine, *cfg.Archive)
	}
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
	var ve *engine.ValidationError
	if errors.As(err, &ve) {
		details := make(map[string]any, len(ve.Fields))
		for k, v := range ve.Fields {
			details[k] = v
		}
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), map[string]any{"fields": details})
	}
	var we *engine.WeightAdvisoryError
	if errors.As(err, &we) {
		return newAPIError(http.StatusConflict, "weight_unbalanced", err.Error(), map[string]any{
			"total":    we.Advisory.Total,
			"expected": we.Advisory.Expected,
		})
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrAlreadyDeleted):
		return newAPIError(http.StatusConflict, "already_deleted", err.Error(), nil)
	case errors.Is(err, normalize.ErrMalformedRecord), errors.Is(err, dates.ErrInvalidDate):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
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

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	spec := sync.OnceValue(func() []byte {
		oas := api.OpenAPI()
		ensureDefaultErrorResponses(oas)
		applyAuthSecurity(oas, basePath)
		data, _ := json.Marshal(oas)
		return data
	})
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec())
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
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
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

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Portfolio API Docs</title>
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
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; when the server has a JWT secret, otherwise X-Actor-Id.
    </p>
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

type projectPath struct {
	ProjectID string `path:"project_id"`
}

type filterQuery struct {
	Department string `query:"department"`
	Leader     string `query:"leader"`
	Status     string `query:"status"`
}

func (q filterQuery) filter() analytics.Filter {
	return analytics.Filter{Department: q.Department, Leader: q.Leader, Status: q.Status}
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		filterQuery
		IncludeDeleted bool `query:"include_deleted"`
	}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		items, err := e.ListProjects(ctx, input.IncludeDeleted)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: input.filter().Apply(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Force bool               `query:"force"`
		Body  SaveProjectRequest `json:"body"`
	}) (*struct {
		Body engine.SaveResult `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.SaveProject(ctx, engine.SaveOptions{
			Project: input.Body.toProject(""),
			ActorID: actorID,
			Force:   input.Force,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.SaveResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := e.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}",
		Summary:     "Save project",
		Description: "Replaces the project, recomputes progress and appends a history snapshot.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		projectPath
		Force bool               `query:"force"`
		Body  SaveProjectRequest `json:"body"`
	}) (*struct {
		Body engine.SaveResult `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.SaveProject(ctx, engine.SaveOptions{
			Project: input.Body.toProject(input.ProjectID),
			ActorID: actorID,
			Force:   input.Force,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.SaveResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}",
		Summary:     "Delete project",
		Description: "Soft delete: the project moves to the deleted status and keeps its history.",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body engine.SaveResult `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.DeleteProject(ctx, input.ProjectID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.SaveResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-history",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/history",
		Summary:     "List history snapshots, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body []domain.ProjectHistory `json:"body"`
	}, error) {
		items, err := e.History(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ProjectHistory `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-variance",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/variance",
		Summary:     "Variance timeline and progression series",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body variance.Report `json:"body"`
	}, error) {
		report, err := e.Variance(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body variance.Report `json:"body"`
		}{Body: report}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-progression",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/progression",
		Summary:     "Progression series only",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body variance.Series `json:"body"`
	}, error) {
		report, err := e.Variance(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body variance.Series `json:"body"`
		}{Body: report.Series}, nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "portfolio-variance",
		Method:      http.MethodGet,
		Path:        "/portfolio/variance",
		Summary:     "Latest change of every live project",
	}, func(ctx context.Context, input *filterQuery) (*struct {
		Body []engine.PortfolioRow `json:"body"`
	}, error) {
		rows, err := e.PortfolioVariance(ctx, input.filter())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []engine.PortfolioRow `json:"body"`
		}{Body: rows}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "leader-analytics",
		Method:      http.MethodGet,
		Path:        "/analytics/leaders",
		Summary:     "Leaders ranked by average progress",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []engine.LeaderRow `json:"body"`
	}, error) {
		rows, err := e.LeaderAnalytics(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []engine.LeaderRow `json:"body"`
		}{Body: rows}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "gantt",
		Method:      http.MethodGet,
		Path:        "/gantt",
		Summary:     "Timeline positions of tasks and milestones",
	}, func(ctx context.Context, input *filterQuery) (*struct {
		Body engine.GanttChart `json:"body"`
	}, error) {
		chart, err := e.Gantt(ctx, input.filter())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.GanttChart `json:"body"`
		}{Body: chart}, nil
	})
}

func registerMasterData(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-master-data",
		Method:      http.MethodGet,
		Path:        "/master-data",
		Summary:     "Leaders, departments and statuses",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.MasterData `json:"body"`
	}, error) {
		md, err := e.Repo.GetMasterData(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.MasterData `json:"body"`
		}{Body: md}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "replace-master-data",
		Method:      http.MethodPut,
		Path:        "/master-data",
		Summary:     "Replace master data",
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body MasterDataRequest `json:"body"`
	}) (*struct {
		Body domain.MasterData `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		md, err := e.ReplaceMasterData(ctx, input.Body.toDomain(), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.MasterData `json:"body"`
		}{Body: md}, nil
	})
}

func registerProgress(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "compute-progress",
		Method:      http.MethodPost,
		Path:        "/progress/compute",
		Summary:     "Compute weighted progress without saving",
	}, func(ctx context.Context, input *struct {
		Body ComputeProgressRequest `json:"body"`
	}) (*struct {
		Body ComputeProgressResponse `json:"body"`
	}, error) {
		pct, advisory := e.ComputeProgress(taskInputs(input.Body.Tasks))
		return &struct {
			Body ComputeProgressResponse `json:"body"`
		}{Body: ComputeProgressResponse{Progress: pct, Advisory: advisory}}, nil
	})
}

func registerImport(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "import-records",
		Method:      http.MethodPost,
		Path:        "/import",
		Summary:     "Import exported project, history and master data records",
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body ImportRequest `json:"body"`
	}) (*struct {
		Body engine.ImportResult `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.ImportRecords(ctx, engine.ImportOptions{
			Projects:   input.Body.Projects,
			Histories:  input.Body.Histories,
			MasterData: input.Body.MasterData,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ImportResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest events, newest first",
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
		Type      string `query:"type"`
		Limit     int    `query:"limit" minimum:"1" maximum:"500" default:"50"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		items, err := e.Repo.LatestEvents(ctx, input.Limit, input.ProjectID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}

func registerExport(api huma.API, e engine.Engine, ex archive.Exporter) {
	huma.Register(api, huma.Operation{
		OperationID: "export-project",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/export",
		Summary:     "Archive history snapshots and the variance report",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body ExportResponse `json:"body"`
	}, error) {
		history, err := e.History(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		paths, err := ex.ExportProject(ctx, input.ProjectID, history, variance.BuildReport(input.ProjectID, history))
		if err != nil {
			return nil, handleError(err)
		}
		if paths == nil {
			paths = []string{}
		}
		return &struct {
			Body ExportResponse `json:"body"`
		}{Body: ExportResponse{ProjectID: input.ProjectID, Paths: paths}}, nil
	})
}
