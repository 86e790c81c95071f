package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/venturus/cdm-teller/internal/errors"
)

// SuccessResponse is the plain success envelope.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// respondError maps an application error to its HTTP status and writes
// the error envelope.
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.Wrap(err, apperrors.ErrUnknown)
	}
	c.JSON(appErr.HTTPStatus(), apperrors.NewErrorResponse(appErr, c.GetString("requestID")))
}

// respondBadRequest writes a binding failure.
func respondBadRequest(c *gin.Context, err error) {
	appErr := apperrors.New(apperrors.ErrInvalidParam, "invalid request body").WithCause(err)
	c.JSON(http.StatusBadRequest, apperrors.NewErrorResponse(appErr, c.GetString("requestID")))
}
