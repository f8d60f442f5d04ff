// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorForbidden     = "FORBIDDEN"
	ErrorUnauthorized  = "UNAUTHORIZED"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"

	// 标记相关错误
	ErrorPinNotFound      = "PIN_NOT_FOUND"
	ErrorPinInvalid       = "PIN_INVALID"
	ErrorCategoryInvalid  = "CATEGORY_INVALID"
	ErrorLocationNotFound = "LOCATION_NOT_FOUND"

	// 会话相关错误
	ErrorModeInvalid    = "MODE_INVALID"
	ErrorWrongPassword  = "WRONG_PASSWORD"
	ErrorAdminRequired  = "ADMIN_REQUIRED"
	ErrorSessionMissing = "SESSION_MISSING"

	// 同步相关错误
	ErrorSeedUnavailable = "NETWORK_UNAVAILABLE"

	// 文件相关错误
	ErrorFileInvalid     = "FILE_INVALID"
	ErrorNothingToImport = "NOTHING_TO_IMPORT"
	ErrorExportDataEmpty = "EXPORT_DATA_EMPTY"

	// 大贤者相关错误
	ErrorSageConfigInvalid = "SAGE_CONFIG_INVALID"
)
