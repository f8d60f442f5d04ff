// internal/api/response_helpers.go
package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Corphon/DragonSwordMap/internal/errors"
)

// APIResponse 标准API响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"` // 用于调试和追踪
}

// APIError 标准错误格式
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseHelper 响应助手类
type ResponseHelper struct{}

// NewResponseHelper 创建响应助手
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

// Success 成功响应
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	rh.respond(c, http.StatusOK, data, message...)
}

// Created 创建成功响应
func (rh *ResponseHelper) Created(c *gin.Context, data interface{}, message ...string) {
	rh.respond(c, http.StatusCreated, data, message...)
}

func (rh *ResponseHelper) respond(c *gin.Context, status int, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}
	if len(message) > 0 {
		response.Message = message[0]
	}
	c.JSON(status, response)
}

// sanitizeErrorMessage 去掉可能带出密钥的错误信息
func sanitizeErrorMessage(message string) string {
	lower := strings.ToLower(message)
	for _, pattern := range []string{"api_key", "key=", "secret", "token"} {
		if strings.Contains(lower, pattern) {
			return "An internal error occurred"
		}
	}
	return message
}

// Error 错误响应
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	apiError := &APIError{
		Code:    errorCode,
		Message: sanitizeErrorMessage(message),
	}
	if len(details) > 0 {
		apiError.Details = sanitizeErrorMessage(details[0])
	}

	c.JSON(statusCode, &APIResponse{
		Success:   false,
		Error:     apiError,
		Message:   apiError.Message,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	})
}

// BadRequest 400错误响应
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, ErrorBadRequest, message, details...)
}

// NotFound 404错误响应
func (rh *ResponseHelper) NotFound(c *gin.Context, resource string, details ...string) {
	rh.Error(c, http.StatusNotFound, rh.getResourceNotFoundCode(resource), resource+"不存在", details...)
}

// InternalError 500错误响应
func (rh *ResponseHelper) InternalError(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusInternalServerError, ErrorInternalError, message, details...)
}

// Forbidden 403错误响应
func (rh *ResponseHelper) Forbidden(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusForbidden, ErrorForbidden, message, details...)
}

// HandleError 按 AppError 类型选择状态码
func (rh *ResponseHelper) HandleError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		rh.InternalError(c, "服务器内部错误", err.Error())
		return
	}

	switch appErr.Type {
	case apperrors.ErrorTypeValidation, apperrors.ErrorTypeMalformedRow:
		rh.Error(c, http.StatusBadRequest, appErr.Code, appErr.Message)
	case apperrors.ErrorTypeNotFound:
		rh.Error(c, http.StatusNotFound, ErrorPinNotFound, appErr.Message)
	case apperrors.ErrorTypeUnauthorized:
		rh.Error(c, http.StatusUnauthorized, appErr.Code, appErr.Message)
	case apperrors.ErrorTypeNetwork:
		rh.Error(c, http.StatusBadGateway, ErrorSeedUnavailable, appErr.Message)
	case apperrors.ErrorTypeNothingToImport:
		rh.Error(c, http.StatusUnprocessableEntity, ErrorNothingToImport, appErr.Message)
	default:
		rh.InternalError(c, appErr.Message, err.Error())
	}
}

// DownloadResponse 下载响应（强制下载）
func (rh *ResponseHelper) DownloadResponse(c *gin.Context, content []byte, filename string, contentType string) {
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Data(http.StatusOK, contentType, content)
}

// getRequestID 获取请求ID
func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	return c.GetString(contextKeyRequestID)
}

// getResourceNotFoundCode 根据资源类型生成错误代码
func (rh *ResponseHelper) getResourceNotFoundCode(resource string) string {
	switch resource {
	case "标记", "pin":
		return ErrorPinNotFound
	case "地点", "location":
		return ErrorLocationNotFound
	default:
		return ErrorNotFound
	}
}
