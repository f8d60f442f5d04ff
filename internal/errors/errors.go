// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	ErrorTypeValidation      ErrorType = "validation_error"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeError           ErrorType = "processing_error"
	ErrorTypeUnauthorized    ErrorType = "unauthorized"
	ErrorTypeStorageCorrupt  ErrorType = "storage_corrupt"
	ErrorTypeNetwork         ErrorType = "network_unavailable"
	ErrorTypeMalformedRow    ErrorType = "malformed_row"
	ErrorTypeNothingToImport ErrorType = "nothing_to_import"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError 非法的变更请求（InvalidMutation）
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewProcessingError 创建处理错误
func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

// NewUnauthorizedError 密码校验失败（AuthDenied）
func NewUnauthorizedError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeUnauthorized, message, originalError)
}

// NewStorageCorruptError 持久化数据不是合法 JSON
func NewStorageCorruptError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeStorageCorrupt, message, originalError)
}

// NewNetworkError 远程请求失败
func NewNetworkError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNetwork, message, originalError)
}

// NewMalformedRowError CSV 行无法解析
func NewMalformedRowError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeMalformedRow, message, originalError)
}

// NewNothingToImportError 导入结果为空
func NewNothingToImportError(message string) *AppError {
	return NewAppError(ErrorTypeNothingToImport, message, nil)
}

// TypeOf 返回错误链中第一个 AppError 的类型
func TypeOf(err error) (ErrorType, bool) {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type, true
	}
	return "", false
}

func isType(err error, t ErrorType) bool {
	got, ok := TypeOf(err)
	return ok && got == t
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool { return isType(err, ErrorTypeValidation) }

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsUnauthorizedError 检查是否为未授权错误
func IsUnauthorizedError(err error) bool { return isType(err, ErrorTypeUnauthorized) }

// IsStorageCorruptError 检查是否为存储损坏错误
func IsStorageCorruptError(err error) bool { return isType(err, ErrorTypeStorageCorrupt) }

// IsNetworkError 检查是否为网络错误
func IsNetworkError(err error) bool { return isType(err, ErrorTypeNetwork) }

// IsMalformedRowError 检查是否为 CSV 行错误
func IsMalformedRowError(err error) bool { return isType(err, ErrorTypeMalformedRow) }

// IsNothingToImportError 检查导入是否为空
func IsNothingToImportError(err error) bool { return isType(err, ErrorTypeNothingToImport) }

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	case ErrorTypeUnauthorized:
		return "UNAUTHORIZED"
	case ErrorTypeStorageCorrupt:
		return "STORAGE_CORRUPT"
	case ErrorTypeNetwork:
		return "NETWORK_UNAVAILABLE"
	case ErrorTypeMalformedRow:
		return "MALFORMED_ROW"
	case ErrorTypeNothingToImport:
		return "NOTHING_TO_IMPORT"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		// 已经是 AppError，只更新消息
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	return NewAppError(errType, message, err)
}
