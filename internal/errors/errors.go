package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType 错误类型枚举
type ErrorType string

const (
	// 系统级错误
	ErrorTypeSystem   ErrorType = "SYSTEM"
	ErrorTypeDatabase ErrorType = "DATABASE"
	ErrorTypeNetwork  ErrorType = "NETWORK"
	ErrorTypeConfig   ErrorType = "CONFIG"

	// 业务级错误
	ErrorTypeBusiness   ErrorType = "BUSINESS"
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeAuth       ErrorType = "AUTH"

	// 集成错误
	ErrorTypeWebSocket ErrorType = "WEBSOCKET"
	ErrorTypeCatalog   ErrorType = "CATALOG"
	ErrorTypeLink      ErrorType = "LINK"
)

// ErrorCode 错误码
type ErrorCode string

const (
	// 系统错误码 (E1xxx)
	ErrCodeSystemGeneric   ErrorCode = "E1000"
	ErrCodeDatabaseConnect ErrorCode = "E1001"
	ErrCodeDatabaseQuery   ErrorCode = "E1002"
	ErrCodeNetworkTimeout  ErrorCode = "E1003"
	ErrCodeConfigMissing   ErrorCode = "E1004"
	ErrCodeConfigInvalid   ErrorCode = "E1005"

	// 业务错误码 (E2xxx)
	ErrCodeValidationFailed  ErrorCode = "E2001"
	ErrCodeResourceNotFound  ErrorCode = "E2002"
	ErrCodeDuplicateResource ErrorCode = "E2003"
	ErrCodeInvalidInput      ErrorCode = "E2004"
	ErrCodeTokenInvalid      ErrorCode = "E2005"

	// 集成错误码 (E3xxx)
	ErrCodeWebSocketConnect   ErrorCode = "E3001"
	ErrCodeWebSocketMessage   ErrorCode = "E3002"
	ErrCodeCatalogUnavailable ErrorCode = "E3003"
	ErrCodeLinkLookup         ErrorCode = "E3004"
)

// AppError 统一错误结构
type AppError struct {
	Type      ErrorType   `json:"type"`
	Code      ErrorCode   `json:"code"`
	Message   string      `json:"message"`
	Details   string      `json:"details,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Context   interface{} `json:"context,omitempty"`
	Cause     error       `json:"-"` // 原始错误，不序列化
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s:%s] %s - %s", e.Type, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// Unwrap 支持错误链
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError 创建新的应用错误
func NewAppError(errorType ErrorType, code ErrorCode, message string) *AppError {
	return &AppError{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithContext 添加上下文信息
func (e *AppError) WithContext(context interface{}) *AppError {
	e.Context = context
	return e
}

// WithCause 添加原始错误
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// IsCode 检查错误码
func (e *AppError) IsCode(code ErrorCode) bool {
	return e.Code == code
}

// As 从错误链中取出AppError
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode 判断错误链中是否包含指定错误码
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.IsCode(code)
}

// 预定义常用错误

// ErrDatabaseConnection 数据库连接错误
func ErrDatabaseConnection(details string, cause error) *AppError {
	return NewAppError(ErrorTypeDatabase, ErrCodeDatabaseConnect, "Failed to connect to database").
		WithDetails(details).
		WithCause(cause)
}

// ErrDatabaseOperation 数据库操作错误
func ErrDatabaseOperation(operation string, cause error) *AppError {
	return NewAppError(ErrorTypeDatabase, ErrCodeDatabaseQuery, "Database operation failed").
		WithDetails(fmt.Sprintf("operation: %s", operation)).
		WithCause(cause)
}

// ErrValidationFailed 验证失败错误
func ErrValidationFailed(field, reason string) *AppError {
	return NewAppError(ErrorTypeValidation, ErrCodeValidationFailed, "Validation failed").
		WithDetails(fmt.Sprintf("Field '%s': %s", field, reason))
}

// ErrWebSocketConnection WebSocket连接错误
func ErrWebSocketConnection(details string, cause error) *AppError {
	return NewAppError(ErrorTypeWebSocket, ErrCodeWebSocketConnect, "WebSocket connection failed").
		WithDetails(details).
		WithCause(cause)
}

// ErrConfigMissing 配置缺失错误
func ErrConfigMissing(configKey string) *AppError {
	return NewAppError(ErrorTypeConfig, ErrCodeConfigMissing, "Required configuration missing").
		WithDetails(fmt.Sprintf("Missing config key: %s", configKey))
}

// ErrConfigInvalid 配置无效错误
func ErrConfigInvalid(configKey, reason string) *AppError {
	return NewAppError(ErrorTypeConfig, ErrCodeConfigInvalid, "Invalid configuration").
		WithDetails(fmt.Sprintf("Config key '%s': %s", configKey, reason))
}

// ErrResourceNotFound 资源未找到错误
func ErrResourceNotFound(resourceType, resourceID string) *AppError {
	return NewAppError(ErrorTypeBusiness, ErrCodeResourceNotFound, "Resource not found").
		WithDetails(fmt.Sprintf("%s with ID '%s' not found", resourceType, resourceID))
}

// ErrDuplicateResource 资源重复错误
func ErrDuplicateResource(resourceType, resourceID string) *AppError {
	return NewAppError(ErrorTypeBusiness, ErrCodeDuplicateResource, "Resource already exists").
		WithDetails(fmt.Sprintf("%s with ID '%s' already exists", resourceType, resourceID))
}

// ErrTokenInvalid 播放列表令牌无效
func ErrTokenInvalid(reason string, cause error) *AppError {
	return NewAppError(ErrorTypeAuth, ErrCodeTokenInvalid, "Invalid playlist token").
		WithDetails(reason).
		WithCause(cause)
}

// ErrCatalogUnavailable 曲库服务不可用
func ErrCatalogUnavailable(details string, cause error) *AppError {
	return NewAppError(ErrorTypeCatalog, ErrCodeCatalogUnavailable, "Catalog service unavailable").
		WithDetails(details).
		WithCause(cause)
}

// ErrLinkLookupFailed 外链查询失败
func ErrLinkLookupFailed(details string, cause error) *AppError {
	return NewAppError(ErrorTypeLink, ErrCodeLinkLookup, "Link lookup failed").
		WithDetails(details).
		WithCause(cause)
}
