package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Field names carried by validation errors.
const (
	FieldWarehouse    = "warehouse"
	FieldCounterparty = "counterparty"
	FieldCart         = "cart"
	FieldProduct      = "product"
	FieldQuantity     = "quantity"
	FieldPrice        = "price"
	FieldStock        = "stock"
	FieldAmount       = "amount"
	FieldDate         = "date"
	FieldStatus       = "status"
)

// ValidationError is a local pre-submission failure. It never reaches the
// backend.
type ValidationError struct {
	Op      string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(op, field, message string) error {
	return &ValidationError{Op: op, Field: field, Message: message}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidationField returns the field named by a ValidationError, or "".
func ValidationField(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Field
	}
	return ""
}

// GenericRemoteMessage is shown when the backend gave no usable detail.
const GenericRemoteMessage = "request failed, please try again"

// RemoteError is any non-2xx answer or transport failure from the backend.
// Status is 0 for transport failures.
type RemoteError struct {
	Op     string
	Status int
	Detail string
	Err    error
}

func (e *RemoteError) Error() string {
	msg := e.Message()
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Message is the user-facing text: the backend detail verbatim when present.
func (e *RemoteError) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return GenericRemoteMessage
}

func IsRemoteError(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// UnreadableResponseMessage is shown when the backend accepted a request but
// its answer could not be decoded.
const UnreadableResponseMessage = "the backend accepted the request but its reply could not be read"

// ResponseError is a 2xx answer whose body could not be decoded. The backend
// has acted on the request, so it is not a RemoteError.
type ResponseError struct {
	Op     string
	Status int
	Err    error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

func IsResponseError(err error) bool {
	var re *ResponseError
	return errors.As(err, &re)
}

// UserMessage extracts the text to show inline for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return fmt.Sprintf("%s: %s", ve.Field, ve.Message)
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Message()
	}
	if IsResponseError(err) {
		return UnreadableResponseMessage
	}
	return err.Error()
}
