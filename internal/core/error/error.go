package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// MongoErrorMessage describes MongoDB related failures.
	MongoErrorMessage = "mongo operation failed"
	// TurnFailedMessage is returned to the transport when a turn cannot complete.
	TurnFailedMessage = "Sorry, something went wrong while processing your message. Please try again."
)

// Kind classifies an AppError so callers can branch without string matching.
type Kind string

const (
	KindInternal          Kind = "internal"
	KindNotFound          Kind = "not_found"
	KindValidation        Kind = "validation"
	KindNoActiveDraft     Kind = "no_active_draft"
	KindDraftExists       Kind = "draft_already_exists"
	KindUnknownTool       Kind = "unknown_tool"
	KindMalformedArgs     Kind = "malformed_tool_arguments"
	KindProvider          Kind = "provider"
	KindDuplicateKey      Kind = "duplicate_key"
	KindOrderNotConfirmed Kind = "order_not_confirmed"
	KindStorage           Kind = "storage"
)

// Sentinels for errors.Is matching. An AppError matches the sentinel of its Kind.
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrNoActiveDraft     = errors.New("no active draft order")
	ErrDraftExists       = errors.New("draft order already exists")
	ErrUnknownTool       = errors.New("unknown tool")
	ErrMalformedArgs     = errors.New("malformed tool arguments")
	ErrProvider          = errors.New("llm provider error")
	ErrDuplicateKey      = errors.New("duplicate key")
	ErrOrderNotConfirmed = errors.New("order not confirmed")
	ErrStorage           = errors.New("storage error")
)

var sentinels = map[Kind]error{
	KindNotFound:          ErrNotFound,
	KindValidation:        ErrValidation,
	KindNoActiveDraft:     ErrNoActiveDraft,
	KindDraftExists:       ErrDraftExists,
	KindUnknownTool:       ErrUnknownTool,
	KindMalformedArgs:     ErrMalformedArgs,
	KindProvider:          ErrProvider,
	KindDuplicateKey:      ErrDuplicateKey,
	KindOrderNotConfirmed: ErrOrderNotConfirmed,
	KindStorage:           ErrStorage,
}

// AppError wraps an underlying error with a kind, an HTTP status and a safe message.
type AppError struct {
	Kind    Kind
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether the target matches the kind sentinel or the underlying error.
func (e *AppError) Is(target error) bool {
	if s, ok := sentinels[e.Kind]; ok && s == target {
		return true
	}
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return errors.As(e.Err, target)
}

// New creates a new internal AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Kind:    KindInternal,
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// NotFound reports a missing user, restaurant or order.
func NotFound(format string, args ...any) *AppError {
	return &AppError{Kind: KindNotFound, Status: http.StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation reports malformed input to a store write or a tool call.
func Validation(format string, args ...any) *AppError {
	return &AppError{Kind: KindValidation, Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// NoActiveDraft reports a draft operation without a preceding initiate.
func NoActiveDraft(phone string) *AppError {
	return &AppError{
		Kind:    KindNoActiveDraft,
		Status:  http.StatusConflict,
		Message: fmt.Sprintf("no order initiated for user %s", phone),
	}
}

// DraftExists reports an initiate while a draft is open, in strict sequencing mode.
func DraftExists(phone string) *AppError {
	return &AppError{
		Kind:    KindDraftExists,
		Status:  http.StatusConflict,
		Message: fmt.Sprintf("an order is already in progress for user %s", phone),
	}
}

// DuplicateKey reports a write that collides with a unique field.
func DuplicateKey(format string, args ...any) *AppError {
	return &AppError{Kind: KindDuplicateKey, Status: http.StatusConflict, Message: fmt.Sprintf(format, args...)}
}

// UnknownTool reports a tool name outside the registry.
func UnknownTool(name string) *AppError {
	return &AppError{Kind: KindUnknownTool, Status: http.StatusBadGateway, Message: fmt.Sprintf("unknown tool %q", name)}
}

// MalformedArguments reports tool arguments that could not be decoded.
func MalformedArguments(name string, err error) *AppError {
	return &AppError{
		Kind:    KindMalformedArgs,
		Err:     err,
		Status:  http.StatusBadGateway,
		Message: fmt.Sprintf("malformed arguments for tool %q", name),
	}
}

// Provider wraps a failure of the LLM chat completion provider.
func Provider(err error) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Kind: KindProvider, Err: err, Status: http.StatusBadGateway, Message: "llm provider request failed"}
}

// OrderNotConfirmed reports a payment request for an order that is not confirmed.
func OrderNotConfirmed(orderID string, status string) *AppError {
	return &AppError{
		Kind:    KindOrderNotConfirmed,
		Status:  http.StatusConflict,
		Message: fmt.Sprintf("order %s is %s, not Confirmed", orderID, status),
	}
}

// KindOf returns the kind of the first AppError in the chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// StatusOf returns the HTTP status carried by err, defaulting to 500.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// IsProtocol reports whether err is an orchestrator protocol error that aborts a turn.
func IsProtocol(err error) bool {
	switch KindOf(err) {
	case KindUnknownTool, KindMalformedArgs:
		return true
	}
	return false
}
