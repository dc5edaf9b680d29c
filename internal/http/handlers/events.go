package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/eventreg/internal/domain/event"
	"github.com/geocoder89/eventreg/internal/utils"
)

type EventDirectory interface {
	CreateEvent(ctx context.Context, req event.CreateEventRequest) (int64, error)
	GetEvent(ctx context.Context, id int64) (event.WithRegistrations, error)
	ListUpcoming(ctx context.Context) ([]event.WithRegistrations, error)
	Stats(ctx context.Context, id int64) (event.Stats, error)
}

type EventsHandler struct {
	directory EventDirectory
	log       *slog.Logger
}

func NewEventsHandler(directory EventDirectory, log *slog.Logger) *EventsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &EventsHandler{directory: directory, log: log}
}

func (h *EventsHandler) CreateEvent(ctx *gin.Context) {
	var req event.CreateEventRequest

	if err := BindJSON(ctx, &req); err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	id, err := h.directory.CreateEvent(ctx.Request.Context(), req)
	if err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	ctx.Header("Location", "/event/"+utils.FormatID(id))
	ctx.JSON(http.StatusCreated, gin.H{
		"message": "Event created successfully",
		"eventId": id,
	})
}

func (h *EventsHandler) GetEvent(ctx *gin.Context) {
	id, ok := eventIDParam(ctx)
	if !ok {
		return
	}

	e, err := h.directory.GetEvent(ctx.Request.Context(), id)
	if err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	respondCached(ctx, eventDetailCache, e)
}

func (h *EventsHandler) ListUpcoming(ctx *gin.Context) {
	items, err := h.directory.ListUpcoming(ctx.Request.Context())
	if err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}
	if items == nil {
		items = []event.WithRegistrations{}
	}

	respondCached(ctx, upcomingCache, items)
}

func (h *EventsHandler) Stats(ctx *gin.Context) {
	id, ok := eventIDParam(ctx)
	if !ok {
		return
	}

	stats, err := h.directory.Stats(ctx.Request.Context(), id)
	if err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	respondCached(ctx, statsCache, stats)
}

func eventIDParam(ctx *gin.Context) (int64, bool) {
	id, err := utils.ParseID(ctx.Param("id"))
	if err != nil {
		RespondBadRequest(ctx, "invalid_id", "Invalid event id", nil)
		return 0, false
	}
	return id, true
}
