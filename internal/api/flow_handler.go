package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/venturus/cdm-teller/internal/errors"
	"github.com/venturus/cdm-teller/internal/flow"
	"github.com/venturus/cdm-teller/internal/middleware"
)

// FlowHandler exposes the deposit flow of the operator's machine. The
// machine is resolved from the JWT: tellers only ever drive the machine
// they are assigned to.
type FlowHandler struct {
	fleet *flow.Fleet
}

// NewFlowHandler creates the deposit flow handler.
func NewFlowHandler(fleet *flow.Fleet) *FlowHandler {
	return &FlowHandler{fleet: fleet}
}

func (h *FlowHandler) controller(c *gin.Context) (*flow.Controller, string, bool) {
	deviceCode, ok := middleware.GetDeviceCode(c)
	if !ok {
		respondError(c, apperrors.New(apperrors.ErrNoDeviceAssigned, "operator has no machine assigned"))
		return nil, "", false
	}

	ctrl, err := h.fleet.Get(deviceCode)
	if err != nil {
		respondError(c, err)
		return nil, "", false
	}
	return ctrl, deviceCode, true
}

// State returns the machine's flow snapshot
// @Summary Flow state
// @Tags Flow
// @Security Bearer
// @Produce json
// @Success 200 {object} flow.Snapshot
// @Router /api/v1/flow/state [get]
func (h *FlowHandler) State(c *gin.Context) {
	ctrl, _, ok := h.controller(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ctrl.State())
}

// SelectCurrency opens a deposit transaction
// @Summary Select deposit currency
// @Tags Flow
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body SelectCurrencyRequest true "currency"
// @Success 200 {object} flow.Snapshot
// @Failure 409 {object} apperrors.ErrorResponse
// @Router /api/v1/flow/select-currency [post]
func (h *FlowHandler) SelectCurrency(c *gin.Context) {
	ctrl, _, ok := h.controller(c)
	if !ok {
		return
	}

	var req SelectCurrencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	username, _ := middleware.GetUsername(c)

	if _, err := ctrl.SelectCurrency(c.Request.Context(), username, req.Currency); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ctrl.State())
}

// Count runs a counting cycle
// @Summary Count inserted notes
// @Tags Flow
// @Security Bearer
// @Produce json
// @Success 200 {object} flow.Snapshot
// @Failure 409 {object} apperrors.ErrorResponse
// @Router /api/v1/flow/count [post]
func (h *FlowHandler) Count(c *gin.Context) {
	ctrl, _, ok := h.controller(c)
	if !ok {
		return
	}

	if _, _, err := ctrl.Count(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ctrl.State())
}

// Deposit commits the escrowed cash
// @Summary Commit the deposit
// @Tags Flow
// @Security Bearer
// @Produce json
// @Success 200 {object} flow.Receipt
// @Failure 409 {object} apperrors.ErrorResponse
// @Router /api/v1/flow/deposit [post]
func (h *FlowHandler) Deposit(c *gin.Context) {
	ctrl, _, ok := h.controller(c)
	if !ok {
		return
	}

	receipt, err := ctrl.Deposit(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, receipt)
}

// Finish acknowledges the receipt
// @Summary Close the receipt screen
// @Tags Flow
// @Security Bearer
// @Produce json
// @Success 200 {object} flow.Snapshot
// @Router /api/v1/flow/finish [post]
func (h *FlowHandler) Finish(c *gin.Context) {
	ctrl, _, ok := h.controller(c)
	if !ok {
		return
	}

	if err := ctrl.Finish(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ctrl.State())
}

// Cancel aborts the open transaction
// @Summary Cancel the deposit
// @Tags Flow
// @Security Bearer
// @Produce json
// @Success 200 {object} flow.Snapshot
// @Failure 409 {object} apperrors.ErrorResponse
// @Router /api/v1/flow/cancel [post]
func (h *FlowHandler) Cancel(c *gin.Context) {
	ctrl, _, ok := h.controller(c)
	if !ok {
		return
	}

	if err := ctrl.Cancel(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ctrl.State())
}

// Recover returns a desynchronized machine to service
// @Summary Recover from desynchronization
// @Tags Flow
// @Security Bearer
// @Produce json
// @Success 200 {object} flow.Snapshot
// @Failure 409 {object} apperrors.ErrorResponse
// @Router /api/v1/flow/recover [post]
func (h *FlowHandler) Recover(c *gin.Context) {
	ctrl, _, ok := h.controller(c)
	if !ok {
		return
	}

	if err := ctrl.Recover(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ctrl.State())
}

// SelectCurrencyRequest carries the chosen currency abbreviation.
type SelectCurrencyRequest struct {
	Currency string `json:"currency" binding:"required"`
}
