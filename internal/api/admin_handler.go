package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/venturus/cdm-teller/internal/errors"
	"github.com/venturus/cdm-teller/internal/models"
	"github.com/venturus/cdm-teller/internal/repository"
	"github.com/venturus/cdm-teller/internal/service"
)

// AdminHandler exposes the back office endpoints: operator accounts,
// machines, concepts, bank account links and the transaction report.
type AdminHandler struct {
	userService service.UserService
	repos       *repository.Manager
}

// NewAdminHandler creates the back office handler.
func NewAdminHandler(userService service.UserService, repos *repository.Manager) *AdminHandler {
	return &AdminHandler{
		userService: userService,
		repos:       repos,
	}
}

// CreateUser registers an operator account
// @Summary Create operator
// @Tags Admin
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body service.CreateUserRequest true "operator"
// @Success 200 {object} models.User
// @Failure 400 {object} apperrors.ErrorResponse
// @Router /api/v1/admin/users [post]
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	user, err := h.userService.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// ListUsers pages through operator accounts
// @Summary List operators
// @Tags Admin
// @Security Bearer
// @Produce json
// @Param page query int false "page"
// @Param page_size query int false "page size"
// @Success 200 {object} ListResponse
// @Router /api/v1/admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, pageSize := pageParams(c)

	users, total, err := h.userService.List(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListResponse{Items: users, Total: total, Page: page})
}

// UpdateUserStatus freezes or reactivates an account
// @Summary Update operator status
// @Tags Admin
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path int true "user id"
// @Param request body UpdateStatusRequest true "status"
// @Success 200 {object} SuccessResponse
// @Router /api/v1/admin/users/{id}/status [put]
func (h *AdminHandler) UpdateUserStatus(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	if err := h.userService.UpdateStatus(c.Request.Context(), id, req.Status); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "status updated"})
}

// AssignDevice links an operator to a machine
// @Summary Assign machine
// @Tags Admin
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path int true "user id"
// @Param request body AssignDeviceRequest true "device"
// @Success 200 {object} SuccessResponse
// @Router /api/v1/admin/users/{id}/device [put]
func (h *AdminHandler) AssignDevice(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req AssignDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	if err := h.userService.AssignDevice(c.Request.Context(), id, req.DeviceCode); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "device assigned"})
}

// LinkBankAccount attaches a settlement account to an operator
// @Summary Link bank account
// @Tags Admin
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body LinkBankAccountRequest true "account"
// @Success 200 {object} models.BankAccount
// @Router /api/v1/admin/bank-accounts [post]
func (h *AdminHandler) LinkBankAccount(c *gin.Context) {
	var req LinkBankAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	accounts := h.repos.BankAccount()

	if existing, err := accounts.FindByUsername(ctx, req.Username); err == nil {
		existing.AccountNumber = req.AccountNumber
		existing.AccountType = req.AccountType
		existing.Currency = req.Currency
		if err := accounts.Update(ctx, existing); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, existing)
		return
	}

	account := &models.BankAccount{
		Username:      req.Username,
		AccountNumber: req.AccountNumber,
		AccountType:   req.AccountType,
		Currency:      req.Currency,
	}
	if err := accounts.Create(ctx, account); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

// GetBankAccount returns an operator's settlement account
// @Summary Get bank account
// @Tags Admin
// @Security Bearer
// @Produce json
// @Param username path string true "username"
// @Success 200 {object} models.BankAccount
// @Failure 404 {object} apperrors.ErrorResponse
// @Router /api/v1/admin/bank-accounts/{username} [get]
func (h *AdminHandler) GetBankAccount(c *gin.Context) {
	account, err := h.repos.BankAccount().FindByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

// ListDevices returns the machine fleet
// @Summary List machines
// @Tags Admin
// @Security Bearer
// @Produce json
// @Success 200 {object} ListResponse
// @Router /api/v1/admin/devices [get]
func (h *AdminHandler) ListDevices(c *gin.Context) {
	page, pageSize := pageParams(c)
	pagination := repository.NewPagination(page, pageSize)

	devices, err := h.repos.Device().GetAll(c.Request.Context(), pagination)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListResponse{Items: devices, Total: pagination.Total, Page: page})
}

// ListConcepts returns the parameter table for one prefix
// @Summary List concepts
// @Tags Admin
// @Security Bearer
// @Produce json
// @Param prefix query int true "concept prefix"
// @Success 200 {array} models.Concept
// @Router /api/v1/admin/concepts [get]
func (h *AdminHandler) ListConcepts(c *gin.Context) {
	prefix, err := strconv.Atoi(c.Query("prefix"))
	if err != nil {
		respondError(c, apperrors.New(apperrors.ErrInvalidParam, "prefix must be numeric"))
		return
	}

	concepts, err := h.repos.Concept().FindByPrefix(c.Request.Context(), prefix)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, concepts)
}

// ListTransactions lists deposits by state
// @Summary Deposits by state
// @Tags Admin
// @Security Bearer
// @Produce json
// @Param state query int true "transaction state (1-4)"
// @Success 200 {object} ListResponse
// @Router /api/v1/admin/transactions [get]
func (h *AdminHandler) ListTransactions(c *gin.Context) {
	state, err := strconv.Atoi(c.Query("state"))
	if err != nil || state < models.TxStateRegistered || state > models.TxStateCollected {
		respondError(c, apperrors.New(apperrors.ErrInvalidParam, "state must be 1 through 4"))
		return
	}

	page, pageSize := pageParams(c)
	pagination := repository.NewPagination(page, pageSize)

	transactions, err := h.repos.Transaction().FindByStates(c.Request.Context(), []int{state}, pagination)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListResponse{Items: transactions, Total: pagination.Total, Page: page})
}

// TransactionReport lists a machine's deposits in a date range
// @Summary Transaction report
// @Tags Admin
// @Security Bearer
// @Produce json
// @Param device_code query string true "machine code"
// @Param from query string true "start date (2006-01-02)"
// @Param to query string true "end date (2006-01-02)"
// @Success 200 {object} ListResponse
// @Router /api/v1/admin/transactions/report [get]
func (h *AdminHandler) TransactionReport(c *gin.Context) {
	deviceCode := c.Query("device_code")
	if deviceCode == "" {
		respondError(c, apperrors.New(apperrors.ErrInvalidParam, "device_code is required"))
		return
	}

	from, err := time.Parse("2006-01-02", c.Query("from"))
	if err != nil {
		respondError(c, apperrors.New(apperrors.ErrInvalidParam, "from must be 2006-01-02"))
		return
	}
	to, err := time.Parse("2006-01-02", c.Query("to"))
	if err != nil {
		respondError(c, apperrors.New(apperrors.ErrInvalidParam, "to must be 2006-01-02"))
		return
	}
	// include the whole end day
	to = to.Add(24*time.Hour - time.Nanosecond)

	page, pageSize := pageParams(c)
	pagination := repository.NewPagination(page, pageSize)

	transactions, err := h.repos.Transaction().Report(c.Request.Context(), deviceCode, from, to, pagination)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListResponse{Items: transactions, Total: pagination.Total, Page: page})
}

// GetBankAudit returns the notification audit of one deposit
// @Summary Bank audit of a deposit
// @Tags Admin
// @Security Bearer
// @Produce json
// @Param id path int true "transaction id"
// @Success 200 {object} models.BankAPIAudit
// @Failure 404 {object} apperrors.ErrorResponse
// @Router /api/v1/admin/transactions/{id}/bank-audit [get]
func (h *AdminHandler) GetBankAudit(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	audit, err := h.repos.BankAudit().FindByTransaction(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, audit)
}

// ListResponse is the paged list envelope.
type ListResponse struct {
	Items interface{} `json:"items"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
}

// UpdateStatusRequest carries the account status.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// AssignDeviceRequest carries the machine assignment. An empty code
// unassigns the operator.
type AssignDeviceRequest struct {
	DeviceCode string `json:"device_code"`
}

// LinkBankAccountRequest carries the settlement account link.
type LinkBankAccountRequest struct {
	Username      string `json:"username" binding:"required"`
	AccountNumber string `json:"account_number" binding:"required"`
	AccountType   string `json:"account_type" binding:"required"`
	Currency      string `json:"currency" binding:"required"`
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}

func pathID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, apperrors.New(apperrors.ErrInvalidParam, "id must be numeric")
	}
	return uint(id), nil
}
