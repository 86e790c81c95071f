package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/venturus/cdm-teller/internal/middleware"
	"github.com/venturus/cdm-teller/internal/service"
)

// CollectionHandler exposes the cash pickup workflow.
type CollectionHandler struct {
	collectionService service.CollectionService
}

// NewCollectionHandler creates the collection handler.
func NewCollectionHandler(collectionService service.CollectionService) *CollectionHandler {
	return &CollectionHandler{collectionService: collectionService}
}

// Generate opens a disbursement request for a machine
// @Summary Generate disbursement request
// @Tags Collection
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body GenerateCollectionRequest true "machine"
// @Success 200 {object} models.DisbursementRequest
// @Failure 404 {object} apperrors.ErrorResponse
// @Router /api/v1/collection/generate [post]
func (h *CollectionHandler) Generate(c *gin.Context) {
	var req GenerateCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	username, _ := middleware.GetUsername(c)

	request, err := h.collectionService.Generate(c.Request.Context(), req.DeviceCode, username)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

// Pending lists the open disbursement requests
// @Summary Pending disbursement requests
// @Tags Collection
// @Security Bearer
// @Produce json
// @Success 200 {array} models.DisbursementRequest
// @Router /api/v1/collection/pending [get]
func (h *CollectionHandler) Pending(c *gin.Context) {
	requests, err := h.collectionService.Pending(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, requests)
}

// Authorize approves a disbursement request
// @Summary Authorize collection
// @Tags Collection
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path int true "request id"
// @Param request body ResolveCollectionRequest false "observation"
// @Success 200 {object} SuccessResponse
// @Router /api/v1/collection/{id}/authorize [post]
func (h *CollectionHandler) Authorize(c *gin.Context) {
	h.resolve(c, h.collectionService.Authorize)
}

// Reject declines a disbursement request
// @Summary Reject collection
// @Tags Collection
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path int true "request id"
// @Param request body ResolveCollectionRequest false "observation"
// @Success 200 {object} SuccessResponse
// @Router /api/v1/collection/{id}/reject [post]
func (h *CollectionHandler) Reject(c *gin.Context) {
	h.resolve(c, h.collectionService.Reject)
}

func (h *CollectionHandler) resolve(c *gin.Context, fn func(ctx context.Context, requestID uint, resolvedBy, observation string) error) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	// body is optional
	var req ResolveCollectionRequest
	_ = c.ShouldBindJSON(&req)

	username, _ := middleware.GetUsername(c)

	if err := fn(c.Request.Context(), id, username, req.Observation); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "request resolved"})
}

// Collect confirms the physical pickup
// @Summary Confirm pickup
// @Tags Collection
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body GenerateCollectionRequest true "machine"
// @Success 200 {object} SuccessResponse
// @Router /api/v1/collection/collect [post]
func (h *CollectionHandler) Collect(c *gin.Context) {
	var req GenerateCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	username, _ := middleware.GetUsername(c)

	count, err := h.collectionService.Collect(c.Request.Context(), req.DeviceCode, username)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "collection confirmed",
		Data:    map[string]int{"transactions": count},
	})
}

// GenerateCollectionRequest names the machine to collect.
type GenerateCollectionRequest struct {
	DeviceCode string `json:"device_code" binding:"required"`
}

// ResolveCollectionRequest carries an optional observation.
type ResolveCollectionRequest struct {
	Observation string `json:"observation"`
}
