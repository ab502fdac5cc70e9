package errors

import "net/http"

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: User module errors
// 12000-12999: Problem & Video module errors
// 13000-13999: Submission & Judge module errors
// 14000-14999: Sheet module errors
// 15000-15999: Discussion & Assistant errors
// 16000-16999: Permission errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103

	// Cache errors (10200-10299)
	CacheError     ErrorCode = 10200
	CacheMiss      ErrorCode = 10201
	CacheSetFailed ErrorCode = 10202

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// Storage & messaging (10400-10499)
	StorageError ErrorCode = 10400
	QueueError   ErrorCode = 10401

	// ========== User Module Errors (11000-11999) ==========

	// Authentication (11000-11099)
	InvalidCredentials    ErrorCode = 11000
	PasswordIncorrect     ErrorCode = 11002
	TokenExpired          ErrorCode = 11003
	TokenInvalid          ErrorCode = 11004
	TokenGenerationFailed ErrorCode = 11005
	TokenRevoked          ErrorCode = 11006

	// Registration (11100-11199)
	EmailAlreadyExists ErrorCode = 11101
	InvalidEmail       ErrorCode = 11103
	InvalidPassword    ErrorCode = 11104
	PasswordTooWeak    ErrorCode = 11105
	InvalidName        ErrorCode = 11106

	// User operations (11200-11299)
	UserNotFound     ErrorCode = 11200
	UserUpdateFailed ErrorCode = 11201
	UserDeleteFailed ErrorCode = 11202

	// ========== Problem Module Errors (12000-12999) ==========

	// Problem basic (12000-12099)
	ProblemNotFound     ErrorCode = 12000
	ProblemCreateFailed ErrorCode = 12002
	ProblemUpdateFailed ErrorCode = 12003
	ProblemDeleteFailed ErrorCode = 12004
	ProblemListEmpty    ErrorCode = 12005

	// Test cases (12100-12199)
	TestCaseInvalid         ErrorCode = 12102
	ReferenceSolutionFailed ErrorCode = 12103

	// Solution videos (12300-12399)
	VideoNotFound      ErrorCode = 12300
	VideoAlreadyExists ErrorCode = 12301
	VideoNotUploaded   ErrorCode = 12302

	// ========== Submission & Judge Module Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionNotFound     ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	CodeTooLarge           ErrorCode = 13002
	LanguageNotSupported   ErrorCode = 13003
	SubmitTooFrequently    ErrorCode = 13004
	SubmissionInProgress   ErrorCode = 13005

	// Judge (13100-13199)
	JudgeSystemError ErrorCode = 13101
	JudgeTimeout     ErrorCode = 13102

	// ========== Sheet Module Errors (14000-14999) ==========

	SheetNotFound       ErrorCode = 14000
	SheetAccessDenied   ErrorCode = 14001
	SheetProblemInvalid ErrorCode = 14002

	// ========== Discussion & Assistant Errors (15000-15999) ==========

	// Discussion (15000-15099)
	PostNotFound     ErrorCode = 15000
	PostCreateFailed ErrorCode = 15001

	// Comments (15100-15199)
	CommentCreateFailed ErrorCode = 15101

	// Assistant (15500-15599)
	AssistantUnavailable ErrorCode = 15500

	// ========== Permission Errors (16000-16999) ==========

	PermissionDenied       ErrorCode = 16000
	InsufficientPermission ErrorCode = 16001
	InvalidRole            ErrorCode = 16003
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Database transaction failed",

	// Cache
	CacheError:     "Cache operation failed",
	CacheMiss:      "Cache miss",
	CacheSetFailed: "Failed to set cache",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Storage & messaging
	StorageError: "Object storage operation failed",
	QueueError:   "Message queue operation failed",

	// User - Authentication
	InvalidCredentials:    "Invalid Credentials",
	PasswordIncorrect:     "Incorrect password",
	TokenExpired:          "Token has expired",
	TokenInvalid:          "Invalid token",
	TokenGenerationFailed: "Failed to generate token",
	TokenRevoked:          "Token has been revoked",

	// User - Registration
	EmailAlreadyExists: "Email already exists",
	InvalidEmail:       "Invalid email format",
	InvalidPassword:    "Invalid password format",
	PasswordTooWeak:    "Weak Password",
	InvalidName:        "Invalid name",

	// User - Operations
	UserNotFound:     "User not found",
	UserUpdateFailed: "Failed to update user",
	UserDeleteFailed: "Failed to delete user",

	// Problem
	ProblemNotFound:     "Problem not found",
	ProblemCreateFailed: "Failed to create problem",
	ProblemUpdateFailed: "Failed to update problem",
	ProblemDeleteFailed: "Failed to delete problem",
	ProblemListEmpty:    "Problem is Missing",

	// Test cases
	TestCaseInvalid:         "Invalid test case format",
	ReferenceSolutionFailed: "Reference solution did not pass",

	// Videos
	VideoNotFound:      "Video not found",
	VideoAlreadyExists: "Video already exists for this problem",
	VideoNotUploaded:   "Video not found on storage",

	// Submission
	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Code is too large",
	LanguageNotSupported:   "Programming language not supported",
	SubmitTooFrequently:    "Submitting too frequently, please wait",
	SubmissionInProgress:   "Submission is already being processed",

	// Judge
	JudgeSystemError: "Judge system error",
	JudgeTimeout:     "Judge did not finish in time",

	// Sheets
	SheetNotFound:       "Sheet not found",
	SheetAccessDenied:   "Access to this sheet is denied",
	SheetProblemInvalid: "One or more problem IDs are invalid",

	// Discussion
	PostNotFound:        "Post not found",
	PostCreateFailed:    "Failed to create post",
	CommentCreateFailed: "Failed to add comment",

	// Assistant
	AssistantUnavailable: "Assistant is unavailable",

	// Permission
	PermissionDenied:       "Permission denied",
	InsufficientPermission: "Insufficient permission",
	InvalidRole:            "Invalid role",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case Success:
		return http.StatusOK
	case NotFound, RecordNotFound, UserNotFound, ProblemNotFound, ProblemListEmpty,
		VideoNotFound, SubmissionNotFound, SheetNotFound, PostNotFound:
		return http.StatusNotFound
	case RecordAlreadyExists, EmailAlreadyExists, VideoAlreadyExists, SubmissionInProgress:
		return http.StatusConflict
	case TooManyRequests, SubmitTooFrequently:
		return http.StatusTooManyRequests
	case ServiceUnavailable:
		return http.StatusServiceUnavailable
	case Timeout, JudgeTimeout:
		return http.StatusGatewayTimeout
	case JudgeSystemError, AssistantUnavailable:
		return http.StatusBadGateway
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden, SheetAccessDenied:
		return http.StatusForbidden
	case InvalidParams, CodeTooLarge, LanguageNotSupported, TestCaseInvalid,
		ReferenceSolutionFailed, VideoNotUploaded, SheetProblemInvalid:
		return http.StatusBadRequest
	}
	switch {
	case c >= 11000 && c < 11100: // Authentication errors
		return http.StatusUnauthorized
	case c >= 11100 && c < 11200: // Registration input errors
		return http.StatusBadRequest
	case c >= 16000 && c < 17000: // Permission errors
		return http.StatusForbidden
	case c >= 10300 && c < 10400: // Validation errors
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
