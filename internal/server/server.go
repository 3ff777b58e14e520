// Package server exposes the maintenance workflow over HTTP. Handlers stay
// thin: decode, call the engine, map errors.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"fleetline/internal/domain"
	"fleetline/internal/engine"
	"fleetline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_position"`
	Message string         `json:"message" example:"position 9 out of range 1..4"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Fleetline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Fleetline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerEvents(group, cfg.Engine)
	registerActions(group, cfg.Engine)
	registerBlockers(group, cfg.Engine)
	registerDemands(group, cfg.Engine)
	registerTools(group, cfg.Engine)
	registerCompletion(group, cfg.Engine)

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

// handleError maps engine errors onto HTTP statuses.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var completed engine.EventCompletedError
	if errors.As(err, &completed) {
		return newAPIError(http.StatusConflict, "event_completed", err.Error(), map[string]any{"event_id": completed.EventID})
	}
	var demandState engine.DemandStateError
	if errors.As(err, &demandState) {
		return newAPIError(http.StatusConflict, "demand_state", err.Error(), map[string]any{"status": demandState.Status})
	}
	var blockerClosed engine.BlockerClosedError
	if errors.As(err, &blockerClosed) {
		return newAPIError(http.StatusConflict, "blocker_closed", err.Error(), nil)
	}
	var overIssue engine.OverIssueError
	if errors.As(err, &overIssue) {
		return newAPIError(http.StatusUnprocessableEntity, "over_issue", err.Error(), map[string]any{"remaining": overIssue.Remaining})
	}
	var belowIssued engine.BelowIssuedError
	if errors.As(err, &belowIssued) {
		return newAPIError(http.StatusUnprocessableEntity, "below_issued", err.Error(), map[string]any{"issued": belowIssued.Issued})
	}
	var badPos engine.InvalidPositionError
	if errors.As(err, &badPos) {
		return newAPIError(http.StatusBadRequest, "invalid_position", err.Error(), map[string]any{"max": badPos.Max})
	}
	var badQty engine.InvalidQuantityError
	if errors.As(err, &badQty) {
		return newAPIError(http.StatusBadRequest, "invalid_quantity", err.Error(), nil)
	}
	var badRange engine.InvalidTimeRangeError
	if errors.As(err, &badRange) {
		return newAPIError(http.StatusBadRequest, "invalid_time_range", err.Error(), nil)
	}
	var badCode engine.UnknownCapabilityCodeError
	if errors.As(err, &badCode) {
		return newAPIError(http.StatusBadRequest, "unknown_capability_code", err.Error(), nil)
	}
	var badPriority engine.UnknownPriorityError
	if errors.As(err, &badPriority) {
		return newAPIError(http.StatusBadRequest, "unknown_priority", err.Error(), nil)
	}
	msg := err.Error()
	if strings.Contains(strings.ToLower(msg), "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
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

type eventPath struct {
	EventID int64 `path:"event_id"`
}

func registerEvents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-event",
		Method:      http.MethodGet,
		Path:        "/events/{event_id}",
		Summary:     "Get maintenance event",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *eventPath) (*struct {
		Body domain.MaintenanceEvent `json:"body"`
	}, error) {
		ev, err := e.Repo.GetEvent(ctx, input.EventID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.MaintenanceEvent `json:"body"`
		}{Body: ev}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-event",
		Method:      http.MethodPost,
		Path:        "/events/{event_id}/start",
		Summary:     "Record actual work start",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		EventID int64              `path:"event_id"`
		Body    *StartEventRequest `json:"body,omitempty"`
	}) (*struct {
		Body domain.MaintenanceEvent `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var start string
		if input.Body != nil {
			start = stringOrEmpty(input.Body.StartDate)
		}
		ev, err := e.Context(input.EventID).Start(ctx, start, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.MaintenanceEvent `json:"body"`
		}{Body: ev}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-narration",
		Method:      http.MethodGet,
		Path:        "/events/{event_id}/narration",
		Summary:     "List event narration",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *eventPath) (*struct {
		Body []domain.NarrationEntry `json:"body"`
	}, error) {
		if _, err := e.Repo.GetEvent(ctx, input.EventID); err != nil {
			return nil, handleError(err)
		}
		entries, err := e.Repo.ListNarration(ctx, input.EventID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.NarrationEntry `json:"body"`
		}{Body: entries}, nil
	})
}

func registerActions(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-actions",
		Method:      http.MethodGet,
		Path:        "/events/{event_id}/actions",
		Summary:     "List actions in order",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *eventPath) (*struct {
		Body []domain.Action `json:"body"`
	}, error) {
		actions, err := e.Context(input.EventID).Actions().List(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Action `json:"body"`
		}{Body: actions}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-action",
		Method:        http.MethodPost,
		Path:          "/events/{event_id}/actions",
		Summary:       "Create blank action",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		EventID int64               `path:"event_id"`
		Body    CreateActionRequest `json:"body"`
	}) (*struct {
		Body domain.Action `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.Context(input.EventID).Actions().Create(ctx, engine.ActionCreateOptions{
			Name:        input.Body.Name,
			Description: stringOrEmpty(input.Body.Description),
			Position:    input.Body.Position,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Action `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-action-from-proto",
		Method:        http.MethodPost,
		Path:          "/events/{event_id}/actions/from-proto",
		Summary:       "Create action from proto",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		EventID int64                         `path:"event_id"`
		Body    CreateActionFromSourceRequest `json:"body"`
	}) (*struct {
		Body domain.Action `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.Context(input.EventID).Actions().CreateFromProto(ctx, input.Body.SourceID, input.Body.Position, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Action `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-action-from-template",
		Method:        http.MethodPost,
		Path:          "/events/{event_id}/actions/from-template",
		Summary:       "Create action from template",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		EventID int64                         `path:"event_id"`
		Body    CreateActionFromSourceRequest `json:"body"`
	}) (*struct {
		Body domain.Action `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.Context(input.EventID).Actions().CreateFromTemplate(ctx, input.Body.SourceID, input.Body.Position, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Action `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "duplicate-action",
		Method:        http.MethodPost,
		Path:          "/events/{event_id}/actions/{action_id}/duplicate",
		Summary:       "Duplicate action",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		EventID  int64                  `path:"event_id"`
		ActionID int64                  `path:"action_id"`
		Body     DuplicateActionRequest `json:"body"`
	}) (*struct {
		Body domain.Action `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.Context(input.EventID).Actions().Duplicate(ctx, input.ActionID, engine.DuplicateOptions{
			Position:    input.Body.Position,
			ActorID:     actorID,
			CopyDemands: input.Body.CopyDemands,
			CopyTools:   input.Body.CopyTools,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Action `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-action",
		Method:        http.MethodDelete,
		Path:          "/events/{event_id}/actions/{action_id}",
		Summary:       "Delete action",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		EventID  int64 `path:"event_id"`
		ActionID int64 `path:"action_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Context(input.EventID).Actions().Delete(ctx, input.ActionID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerBlockers(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-blockers",
		Method:      http.MethodGet,
		Path:        "/events/{event_id}/blockers",
		Summary:     "List blockers",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *eventPath) (*struct {
		Body []domain.Blocker `json:"body"`
	}, error) {
		blockers, err := e.Context(input.EventID).Blockers().List(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Blocker `json:"body"`
		}{Body: blockers}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "open-blocker",
		Method:        http.MethodPost,
		Path:          "/events/{event_id}/blockers",
		Summary:       "Open blocker",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		EventID int64              `path:"event_id"`
		Body    OpenBlockerRequest `json:"body"`
	}) (*struct {
		Body domain.Blocker `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.Context(input.EventID).Blockers().Open(ctx, engine.BlockerOpenOptions{
			StatusCode: input.Body.StatusCode,
			Reason:     input.Body.Reason,
			Priority:   input.Body.Priority,
			StartTime:  stringOrEmpty(input.Body.StartTime),
			ActorID:    actorID,
			Comment:    stringOrEmpty(input.Body.Comment),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Blocker `json:"body"`
		}{Body: b}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-blocker",
		Method:      http.MethodPost,
		Path:        "/events/{event_id}/blockers/{blocker_id}/close",
		Summary:     "Close blocker",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		EventID   int64               `path:"event_id"`
		BlockerID int64               `path:"blocker_id"`
		Body      CloseBlockerRequest `json:"body"`
	}) (*struct {
		Body domain.Blocker `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.Context(input.EventID).Blockers().Close(ctx, input.BlockerID, engine.BlockerCloseOptions{
			EndTime: stringOrEmpty(input.Body.EndTime),
			Notes:   stringOrEmpty(input.Body.Notes),
			ActorID: actorID,
			Comment: stringOrEmpty(input.Body.Comment),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Blocker `json:"body"`
		}{Body: b}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-blocker",
		Method:      http.MethodPatch,
		Path:        "/events/{event_id}/blockers/{blocker_id}",
		Summary:     "Update blocker",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		EventID   int64                `path:"event_id"`
		BlockerID int64                `path:"blocker_id"`
		Body      UpdateBlockerRequest `json:"body"`
	}) (*struct {
		Body domain.Blocker `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.Context(input.EventID).Blockers().Update(ctx, input.BlockerID, engine.BlockerUpdateOptions{
			StatusCode: input.Body.StatusCode,
			Reason:     input.Body.Reason,
			Priority:   input.Body.Priority,
			Notes:      input.Body.Notes,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Blocker `json:"body"`
		}{Body: b}, nil
	})
}

func registerDemands(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-demand",
		Method:        http.MethodPost,
		Path:          "/events/{event_id}/demands",
		Summary:       "Create part demand",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		EventID int64               `path:"event_id"`
		Body    CreateDemandRequest `json:"body"`
	}) (*struct {
		Body domain.PartDemand `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.Context(input.EventID).Demands().Create(ctx, input.Body.ActionID, input.Body.PartID, input.Body.Quantity, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PartDemand `json:"body"`
		}{Body: d}, nil
	})

	type demandOp func(ctx context.Context, c *engine.Context, demandID int64, quantity float64, actorID int64) (domain.PartDemand, error)
	register := func(id, pathSuffix, summary string, withQuantity bool, op demandOp) {
		huma.Register(api, huma.Operation{
			OperationID: id,
			Method:      http.MethodPost,
			Path:        "/events/{event_id}/demands/{demand_id}/" + pathSuffix,
			Summary:     summary,
			Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
		}, func(ctx context.Context, input *struct {
			EventID  int64                  `path:"event_id"`
			DemandID int64                  `path:"demand_id"`
			Body     *DemandQuantityRequest `json:"body,omitempty"`
		}) (*struct {
			Body domain.PartDemand `json:"body"`
		}, error) {
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			var qty float64
			if withQuantity {
				if input.Body == nil {
					return nil, newAPIError(http.StatusBadRequest, "bad_request", "quantity is required", nil)
				}
				qty = input.Body.Quantity
			}
			d, err := op(ctx, e.Context(input.EventID), input.DemandID, qty, actorID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body domain.PartDemand `json:"body"`
			}{Body: d}, nil
		})
	}

	register("approve-demand", "approve", "Approve part demand", false,
		func(ctx context.Context, c *engine.Context, demandID int64, _ float64, actorID int64) (domain.PartDemand, error) {
			return c.Demands().Approve(ctx, demandID, actorID)
		})
	register("issue-demand", "issue", "Issue against part demand", true,
		func(ctx context.Context, c *engine.Context, demandID int64, qty float64, actorID int64) (domain.PartDemand, error) {
			return c.Demands().Issue(ctx, demandID, qty, actorID)
		})
	register("undo-issue-demand", "undo-issue", "Undo part issue", true,
		func(ctx context.Context, c *engine.Context, demandID int64, qty float64, actorID int64) (domain.PartDemand, error) {
			return c.Demands().UndoIssue(ctx, demandID, qty, actorID)
		})
	register("cancel-demand", "cancel", "Cancel part demand", false,
		func(ctx context.Context, c *engine.Context, demandID int64, _ float64, actorID int64) (domain.PartDemand, error) {
			return c.Demands().Cancel(ctx, demandID, actorID)
		})
	register("update-demand", "update", "Update required quantity", true,
		func(ctx context.Context, c *engine.Context, demandID int64, qty float64, actorID int64) (domain.PartDemand, error) {
			return c.Demands().Update(ctx, demandID, qty, actorID)
		})
}

func registerTools(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-tool",
		Method:        http.MethodPost,
		Path:          "/events/{event_id}/tools",
		Summary:       "Add tool requirement",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		EventID int64          `path:"event_id"`
		Body    AddToolRequest `json:"body"`
	}) (*struct {
		Body domain.ActionTool `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.Context(input.EventID).Tools().Add(ctx, input.Body.ActionID, input.Body.ToolID, input.Body.Quantity, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ActionTool `json:"body"`
		}{Body: t}, nil
	})
}

func registerCompletion(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "complete-event",
		Method:      http.MethodPost,
		Path:        "/events/{event_id}/complete",
		Summary:     "Complete maintenance event",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		EventID int64                `path:"event_id"`
		Body    CompleteEventRequest `json:"body"`
	}) (*struct {
		Body domain.MaintenanceEvent `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ev, err := e.Context(input.EventID).Completion().Complete(ctx, engine.CompletionOptions{
			StartDate:     input.Body.StartDate,
			EndDate:       input.Body.EndDate,
			BillableHours: input.Body.BillableHours,
			Meters:        [4]*float64{input.Body.Meter1, input.Body.Meter2, input.Body.Meter3, input.Body.Meter4},
			Comment:       input.Body.Comment,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.MaintenanceEvent `json:"body"`
		}{Body: ev}, nil
	})
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
