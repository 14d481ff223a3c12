package httpserver

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/lllypuk/eventcore/internal/application/appcore"
	"github.com/lllypuk/eventcore/internal/domain/errs"
	"github.com/lllypuk/eventcore/internal/domain/event"
	"github.com/lllypuk/eventcore/internal/domain/saga"
	"github.com/lllypuk/eventcore/internal/domain/uuid"
)

// StreamView is the body of GET /streams/:stream/events.
type StreamView struct {
	Stream      string         `json:"stream"`
	LastVersion int            `json:"last_version"`
	Events      []event.Record `json:"events"`
}

// SagaView is the body of GET /sagas/:correlationId.
type SagaView struct {
	Meta  *saga.TransactionMeta `json:"meta"`
	Trail []saga.StepError      `json:"trail,omitempty"`
}

// InspectionHandler exposes read-only views over the stores.
// A nil store leaves its routes unregistered.
type InspectionHandler struct {
	events appcore.EventStore
	sagas  appcore.SagaStore
}

// NewInspectionHandler creates a new InspectionHandler.
func NewInspectionHandler(events appcore.EventStore, sagas appcore.SagaStore) *InspectionHandler {
	return &InspectionHandler{events: events, sagas: sagas}
}

// Register mounts the handler on g.
func (h *InspectionHandler) Register(g *echo.Group) {
	if h.events != nil {
		g.GET("/streams/:stream/events", h.GetStreamEvents)
	}
	if h.sagas != nil {
		g.GET("/sagas/:correlationId", h.GetSaga)
	}
}

// GetStreamEvents returns the whole stream, or a single record when
// ?version=N or ?last=true is given.
func (h *InspectionHandler) GetStreamEvents(c echo.Context) error {
	ctx := c.Request().Context()
	stream := c.Param("stream")

	if v := c.QueryParam("version"); v != "" {
		version, err := strconv.Atoi(v)
		if err != nil || version < 0 {
			return RespondError(c, fmt.Errorf("%w: version must be a non-negative integer", errs.ErrInvalidArgument))
		}
		rec, err := h.events.GetByVersion(ctx, stream, version)
		if err != nil {
			return RespondError(c, err)
		}
		return RespondOK(c, StreamView{Stream: stream, LastVersion: rec.Version, Events: []event.Record{rec}})
	}

	if last, _ := strconv.ParseBool(c.QueryParam("last")); last {
		rec, err := h.events.GetLastEvent(ctx, stream)
		if err != nil {
			return RespondError(c, err)
		}
		return RespondOK(c, StreamView{Stream: stream, LastVersion: rec.Version, Events: []event.Record{rec}})
	}

	records, err := h.events.Get(ctx, stream)
	if err != nil {
		return RespondError(c, err)
	}
	view := StreamView{Stream: stream, LastVersion: -1, Events: records}
	if len(records) > 0 {
		view.LastVersion = records[len(records)-1].Version
	}
	return RespondOK(c, view)
}

// GetSaga returns the progress record of one saga run with its decoded
// error trail.
func (h *InspectionHandler) GetSaga(c echo.Context) error {
	id, err := uuid.ParseUUID(c.Param("correlationId"))
	if err != nil {
		return RespondError(c, fmt.Errorf("%w: correlation id: %w", errs.ErrInvalidArgument, err))
	}

	meta, err := h.sagas.Get(c.Request().Context(), id)
	if err != nil {
		return RespondError(c, err)
	}
	if meta == nil {
		return c.JSON(http.StatusNotFound, Response{
			Error: &Error{Code: "SAGA_NOT_FOUND", Message: "no saga with correlation id " + id.String()},
		})
	}

	trail, err := meta.Errors()
	if err != nil {
		return RespondError(c, err)
	}
	return RespondOK(c, SagaView{Meta: meta, Trail: trail})
}
