package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind классифицирует сбой запроса. Отказ валидации не является сбоем:
// он приходит в data вместе с сообщением.
type Kind string

const (
	KindBadRequest  Kind = "bad_request"
	KindNotFound    Kind = "not_found"
	KindInternal    Kind = "internal"
	KindUnavailable Kind = "unavailable"
	KindTimeout     Kind = "timeout"
)

// Error - сбой запроса на уровне транспорта или хранилища.
type Error struct {
	Kind    Kind
	Message string
	Err     error

	// Permanent - повтор не изменит результат (битый или слишком большой ответ).
	Permanent bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func badRequest(format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

// HTTPStatus возвращает HTTP-статус для вида ошибки.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode возвращает gRPC-код для вида ошибки.
func (k Kind) GRPCCode() codes.Code {
	switch k {
	case KindBadRequest:
		return codes.InvalidArgument
	case KindNotFound:
		return codes.NotFound
	case KindUnavailable:
		return codes.Unavailable
	case KindTimeout:
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

// KindFromHTTPStatus восстанавливает вид ошибки по статусу ответа.
func KindFromHTTPStatus(code int) Kind {
	switch {
	case code == http.StatusNotFound:
		return KindNotFound
	case code == http.StatusServiceUnavailable || code == http.StatusBadGateway:
		return KindUnavailable
	case code == http.StatusGatewayTimeout:
		return KindTimeout
	case code >= 500:
		return KindInternal
	default:
		return KindBadRequest
	}
}

// KindFromGRPCCode восстанавливает вид ошибки по gRPC-коду.
func KindFromGRPCCode(code codes.Code) Kind {
	switch code {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return KindBadRequest
	case codes.NotFound, codes.Unimplemented:
		return KindNotFound
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return KindUnavailable
	case codes.DeadlineExceeded:
		return KindTimeout
	default:
		return KindInternal
	}
}

// toError приводит ошибку сервиса к *Error.
func toError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindUnavailable, Message: "request canceled", Err: err}
	default:
		return &Error{Kind: KindInternal, Message: "internal error", Err: err}
	}
}

// IsTimeout сообщает, что вызов не уложился в срок.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Kind == KindTimeout {
		return true
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.DeadlineExceeded {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsRetryable: повторяются сбои транспорта, таймауты попытки и 5xx/Unavailable.
// Ответы 4xx, отказы валидации и Permanent-ошибки не повторяются.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		if apiErr.Permanent {
			return false
		}
		switch apiErr.Kind {
		case KindBadRequest, KindNotFound:
			return false
		default:
			return true
		}
	}
	// Всё остальное приходит из транспорта до получения ответа.
	return true
}
