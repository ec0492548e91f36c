package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/orsa-go/orsa/pkg/api/models"
	"github.com/orsa-go/orsa/pkg/api/response"
	"github.com/orsa-go/orsa/pkg/logger"
	"github.com/orsa-go/orsa/pkg/saga"
	"github.com/orsa-go/orsa/pkg/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// SagaHandler serves the saga and snapshot endpoints.
type SagaHandler struct {
	manager   *saga.Manager
	store     storage.Store
	logger    logger.Logger
	validator *validator.Validate
}

// NewSagaHandler creates a saga handler. store may be nil when persistence is
// disabled; the snapshot endpoints then answer 503.
func NewSagaHandler(manager *saga.Manager, store storage.Store, log logger.Logger) *SagaHandler {
	if log == nil {
		log = logger.Global()
	}
	return &SagaHandler{
		manager:   manager,
		store:     store,
		logger:    log.With("component", "saga-api"),
		validator: validator.New(),
	}
}

// SubmitSaga handles POST /api/v1/sagas.
// @Summary Submit a saga
// @Description Build a registered declaration with the given arguments and schedule it
// @Tags sagas
// @Accept json
// @Produce json
// @Param saga body models.SagaSubmitRequest true "Declaration and arguments"
// @Success 202 {object} models.SagaSubmitResponse "Saga accepted"
// @Failure 400 {object} response.ErrorResponse "Invalid request body or validation error"
// @Failure 404 {object} response.ErrorResponse "Declaration not registered"
// @Failure 409 {object} response.ErrorResponse "Saga with this uid is already running"
// @Failure 503 {object} response.ErrorResponse "Manager not running"
// @Router /api/v1/sagas [post]
func (h *SagaHandler) SubmitSaga(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.SagaSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "invalid request body", getRequestID(ctx))
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		response.ErrorWithDetails(w, http.StatusBadRequest, response.ErrCodeValidationFailed,
			"request validation failed", validationDetails(err), getRequestID(ctx))
		return
	}

	decl, ok := h.manager.Registry().Lookup(req.Declaration)
	if !ok {
		response.Error(w, http.StatusNotFound, response.ErrCodeNotFound,
			"declaration not registered: "+req.Declaration, getRequestID(ctx))
		return
	}
	opts := []saga.EngineOption{
		saga.WithEngineLogger(h.manager.Logger()),
		saga.WithEngineMetrics(h.manager.Metrics()),
	}
	if req.UID != "" {
		opts = append(opts, saga.WithUID(req.UID))
	}
	engine := saga.NewEngine(decl, saga.Args{Positional: req.Args, Named: req.Kwargs}, opts...)

	handle, err := h.manager.Schedule(ctx, engine)
	if err != nil {
		h.logger.WarnContext(ctx, "saga submit rejected", logger.SagaKey, decl.Name(), "error", err)
		response.HandleError(w, err, getRequestID(ctx))
		return
	}
	response.JSON(w, http.StatusAccepted, models.SagaSubmitResponse{
		UID:         handle.UID(),
		Declaration: req.Declaration,
		Task:        engine.TaskName(),
	})
}

// GetSaga handles GET /api/v1/sagas/{uid}. Sagas the manager no longer tracks
// are looked up in the snapshot store.
// @Summary Get saga status
// @Tags sagas
// @Produce json
// @Param uid path string true "Saga uid"
// @Success 200 {object} models.SagaStatusResponse "Saga status"
// @Failure 404 {object} response.ErrorResponse "Saga not found"
// @Router /api/v1/sagas/{uid} [get]
func (h *SagaHandler) GetSaga(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := chi.URLParam(r, "uid")

	if e, err := h.manager.Get(uid); err == nil {
		response.JSON(w, http.StatusOK, models.StatusFromEngine(e))
		return
	}
	if h.store != nil {
		snap, err := h.store.Get(ctx, uid)
		if err == nil {
			response.JSON(w, http.StatusOK, models.StatusFromSnapshot(snap))
			return
		}
		var notFound *storage.NotFoundError
		if !errors.As(err, &notFound) {
			response.HandleError(w, err, getRequestID(ctx))
			return
		}
	}
	response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "saga not found: "+uid, getRequestID(ctx))
}

// ListSagas handles GET /api/v1/sagas?name=&state=&limit=&offset=.
// @Summary List sagas
// @Description List the sagas tracked by the manager
// @Tags sagas
// @Produce json
// @Param name query string false "Filter by saga name"
// @Param state query string false "Filter by state"
// @Param limit query int false "Maximum number of results" default(50)
// @Param offset query int false "Offset for pagination" default(0)
// @Success 200 {object} models.SagaListResponse "List of sagas"
// @Failure 400 {object} response.ErrorResponse "Invalid filter"
// @Router /api/v1/sagas [get]
func (h *SagaHandler) ListSagas(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseListFilter(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, err.Error(), getRequestID(ctx))
		return
	}

	engines, total := h.manager.List(filter)
	items := make([]models.SagaSummary, 0, len(engines))
	for _, e := range engines {
		items = append(items, models.Summarize(e))
	}
	response.JSON(w, http.StatusOK, models.SagaListResponse{
		Items:  items,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// ListSnapshots handles GET /api/v1/snapshots.
// @Summary List snapshots
// @Tags snapshots
// @Produce json
// @Success 200 {object} models.SnapshotListResponse "Persisted snapshots"
// @Failure 503 {object} response.ErrorResponse "Snapshot store not configured"
// @Router /api/v1/snapshots [get]
func (h *SagaHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.store == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable,
			"snapshot store not configured", getRequestID(ctx))
		return
	}
	snaps, err := h.store.List(ctx)
	if err != nil {
		response.HandleError(w, err, getRequestID(ctx))
		return
	}
	if snaps == nil {
		snaps = []*saga.Snapshot{}
	}
	response.JSON(w, http.StatusOK, models.SnapshotListResponse{Items: snaps, Total: len(snaps)})
}

// RestoreSnapshot handles POST /api/v1/snapshots/{uid}/restore. A saga that is
// still pending or running answers 409.
// @Summary Restore a snapshot
// @Description Rebuild a saga from its stored snapshot and resume it
// @Tags snapshots
// @Produce json
// @Param uid path string true "Saga uid"
// @Success 202 {object} models.SagaActionResponse "Saga restored"
// @Failure 404 {object} response.ErrorResponse "Snapshot not found"
// @Failure 409 {object} response.ErrorResponse "Saga with this uid is already running"
// @Failure 500 {object} response.ErrorResponse "Snapshot cannot be restored"
// @Failure 503 {object} response.ErrorResponse "Snapshot store not configured"
// @Router /api/v1/snapshots/{uid}/restore [post]
func (h *SagaHandler) RestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := chi.URLParam(r, "uid")
	if h.store == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable,
			"snapshot store not configured", getRequestID(ctx))
		return
	}
	snap, err := h.store.Get(ctx, uid)
	if err != nil {
		response.HandleError(w, err, getRequestID(ctx))
		return
	}
	handle, err := h.manager.Restore(ctx, snap)
	if err != nil {
		response.HandleError(w, err, getRequestID(ctx))
		return
	}
	response.JSON(w, http.StatusAccepted, models.SagaActionResponse{
		UID:  handle.UID(),
		Task: handle.Engine().TaskName(),
	})
}

// ListDeclarations handles GET /api/v1/declarations.
// @Summary List declarations
// @Tags declarations
// @Produce json
// @Success 200 {object} models.DeclarationListResponse "Registered declaration keys"
// @Router /api/v1/declarations [get]
func (h *SagaHandler) ListDeclarations(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, models.DeclarationListResponse{Items: h.manager.Registry().Keys()})
}

func parseListFilter(r *http.Request) (saga.ListFilter, error) {
	q := r.URL.Query()
	filter := saga.ListFilter{
		Name:  strings.TrimSpace(q.Get("name")),
		Limit: defaultListLimit,
	}
	if raw := strings.TrimSpace(q.Get("state")); raw != "" {
		state := saga.State(raw)
		switch state {
		case saga.StateBuilding, saga.StateReady, saga.StateRunning,
			saga.StateRollingBack, saga.StateCompleted, saga.StateFailed:
			filter.State = state
		default:
			return filter, errors.New("invalid state: " + raw)
		}
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return filter, errors.New("invalid limit")
		}
		filter.Limit = min(n, maxListLimit)
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, errors.New("invalid offset")
		}
		filter.Offset = n
	}
	return filter, nil
}

func validationDetails(err error) map[string]any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]any{"error": err.Error()}
	}
	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return details
}
