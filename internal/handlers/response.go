package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nexttrack/internal/errors"
	"nexttrack/internal/logger"
)

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Code    errors.ErrorCode `json:"code,omitempty"`
	Details string           `json:"details,omitempty"`
}

// statusFor AppError错误码到HTTP状态码
func statusFor(err error) int {
	appErr, ok := errors.As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch appErr.Code {
	case errors.ErrCodeValidationFailed, errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeTokenInvalid:
		return http.StatusUnauthorized
	case errors.ErrCodeResourceNotFound:
		return http.StatusNotFound
	case errors.ErrCodeDuplicateResource:
		return http.StatusConflict
	case errors.ErrCodeCatalogUnavailable, errors.ErrCodeLinkLookup:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError 写出错误响应，5xx记录为错误日志
func respondError(c *gin.Context, log *logger.Logger, err error, message string) {
	status := statusFor(err)
	resp := ErrorResponse{Success: false, Message: message}

	if appErr, ok := errors.As(err); ok {
		resp.Code = appErr.Code
		resp.Details = appErr.Details
		if status >= http.StatusInternalServerError {
			log.LogAppError(appErr, message)
		}
	} else {
		resp.Details = err.Error()
		log.WithError(err).Error(message)
	}

	_ = c.Error(err)
	c.JSON(status, resp)
}

// badRequest 请求体或参数解析失败
func badRequest(c *gin.Context, log *logger.Logger, err error) {
	log.Warn("Invalid request parameters", logger.Fields{
		"path":  c.FullPath(),
		"error": err.Error(),
	})
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Success: false,
		Message: "Invalid request parameters: " + err.Error(),
	})
}
