package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/eventreg/internal/domain/registration"
)

type RegistrationCoordinator interface {
	Register(ctx context.Context, req registration.Request) error
	Cancel(ctx context.Context, req registration.Request) error
}

type RegistrationHandler struct {
	coordinator RegistrationCoordinator
	log         *slog.Logger
}

func NewRegistrationHandler(coordinator RegistrationCoordinator, log *slog.Logger) *RegistrationHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RegistrationHandler{coordinator: coordinator, log: log}
}

func (h *RegistrationHandler) Register(ctx *gin.Context) {
	var req registration.Request

	if err := BindJSON(ctx, &req); err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	if err := h.coordinator.Register(ctx.Request.Context(), req); err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "User registered successfully"})
}

func (h *RegistrationHandler) Cancel(ctx *gin.Context) {
	var req registration.Request

	if err := BindJSON(ctx, &req); err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	if err := h.coordinator.Cancel(ctx.Request.Context(), req); err != nil {
		RespondDomainError(ctx, h.log, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Registration cancelled successfully"})
}
