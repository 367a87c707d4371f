// Package apperr описывает таксономию ошибок бизнес-логики и их отображение на HTTP.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind определяет категорию ошибки
type Kind int

const (
	Internal Kind = iota
	NotFound
	InvalidState
	InvalidOperation
	Forbidden
	InsufficientFunds
	Conflict
	InvalidInput
	Unavailable
	Unauthorized
)

var kindNames = map[Kind]string{
	Internal:          "internal",
	NotFound:          "not_found",
	InvalidState:      "invalid_state",
	InvalidOperation:  "invalid_operation",
	Forbidden:         "forbidden",
	InsufficientFunds: "insufficient_funds",
	Conflict:          "conflict",
	InvalidInput:      "invalid_input",
	Unavailable:       "unavailable",
	Unauthorized:      "unauthorized",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error ошибка с категорией и сообщением для клиента
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is позволяет сравнивать ошибки по категории: errors.Is(err, apperr.E(apperr.NotFound))
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// New создает ошибку заданной категории
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap оборачивает ошибку нижнего уровня
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// E возвращает эталонную ошибку категории для errors.Is
func E(kind Kind) error { return &Error{Kind: kind} }

// KindOf извлекает категорию из цепочки ошибок. Чужие ошибки считаются Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Message возвращает сообщение, безопасное для клиента
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "внутренняя ошибка сервера"
}

// HTTPStatus отображает категорию на код ответа
func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound:
		return http.StatusNotFound
	case InvalidState, InvalidOperation, InvalidInput, InsufficientFunds:
		return http.StatusBadRequest
	case Forbidden:
		return http.StatusForbidden
	case Unauthorized:
		return http.StatusUnauthorized
	case Conflict:
		return http.StatusConflict
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
