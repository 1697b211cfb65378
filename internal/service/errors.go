package service

import (
	"errors"
	"fmt"

	"live-session/internal/repository"
)

// Kind 是错误的分类，调用方按 Kind 决定如何处理（重试、退避、拒绝）。
type Kind int

const (
	KindInternal Kind = iota
	KindAuthorization
	KindAdmission
	KindPrecondition
	KindStore
	KindConflict
	KindNotFound
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindAdmission:
		return "admission"
	case KindPrecondition:
		return "precondition"
	case KindStore:
		return "store"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid"
	default:
		return "internal"
	}
}

// Error 是服务层返回的错误：稳定的机器可读 Code 加上可读的 Message。
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error // 底层原因，不返回给客户端
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is 按 Code 比较，使 errors.Is(err, ErrRateLimited) 对包装后的错误也成立。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Wrap 返回一个携带底层原因的副本。
func (e *Error) Wrap(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

// WithMessage 返回一个替换了 Message 的副本。
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	c := *e
	c.Message = fmt.Sprintf(format, args...)
	return &c
}

var (
	// 授权
	ErrTokenMissing       = &Error{Kind: KindAuthorization, Code: "WS_JWT_MISSING", Message: "bearer credential is required"}
	ErrTokenInvalid       = &Error{Kind: KindAuthorization, Code: "WS_JWT_INVALID", Message: "invalid or expired credential"}
	ErrTokenClaimInvalid  = &Error{Kind: KindAuthorization, Code: "WS_JWT_CLAIM_INVALID", Message: "credential claims are invalid"}
	ErrRoomMismatch       = &Error{Kind: KindAuthorization, Code: "WS_ROOM_MISMATCH", Message: "destination room does not match the connection"}
	ErrForbidden          = &Error{Kind: KindAuthorization, Code: "WS_FORBIDDEN", Message: "role is not allowed for this destination"}
	ErrReservationInvalid = &Error{Kind: KindAuthorization, Code: "CODE_RESERVATION_INVALID", Message: "code reservation does not match"}
	ErrCodeNotConfirmed   = &Error{Kind: KindAuthorization, Code: "CODE_NOT_CONFIRMED", Message: "code is not usable yet"}
	ErrPresenterKeyWrong  = &Error{Kind: KindAuthorization, Code: "PRESENTER_KEY_INVALID", Message: "presenter key is invalid"}

	// 准入
	ErrRateLimited = &Error{Kind: KindAdmission, Code: "RATE_LIMITED", Message: "too many requests, slow down"}

	// 前置条件
	ErrTotalPageMissing     = &Error{Kind: KindPrecondition, Code: "TOTAL_PAGE_NULL", Message: "total page count is not set"}
	ErrPresenterPageMissing = &Error{Kind: KindPrecondition, Code: "PRESENTER_PAGE_NULL", Message: "presenter page is not set"}
	ErrInvalidTransition    = &Error{Kind: KindPrecondition, Code: "INVALID_SESSION_STATUS", Message: "session status transition is not allowed"}

	// 存储 / 冲突
	ErrStore         = &Error{Kind: KindStore, Code: "STORE_UNAVAILABLE", Message: "ephemeral store error"}
	ErrCodeExhausted = &Error{Kind: KindConflict, Code: "CODE_GENERATION_EXHAUSTED", Message: "failed to reserve a unique code"}
	ErrInternal      = &Error{Kind: KindInternal, Code: "INTERNAL", Message: "internal server error"}

	// 未找到 / 参数
	ErrCodeNotFound   = &Error{Kind: KindNotFound, Code: "CODE_NOT_FOUND", Message: "invalid or expired invite code"}
	ErrRoomNotFound   = &Error{Kind: KindNotFound, Code: "ROOM_NOT_FOUND", Message: "room not found"}
	ErrReportNotFound = &Error{Kind: KindNotFound, Code: "REPORT_NOT_FOUND", Message: "report not found"}
	ErrInvalidInput   = &Error{Kind: KindInvalid, Code: "INVALID_INPUT", Message: "invalid input"}
)

// KindOf 返回 err 链中第一个 *Error 的 Kind，没有时为 KindInternal。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// AsError 将任意错误转换为 *Error，未分类的错误视为内部错误。
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal.Wrap(err)
}

// mapRepoError 将仓库层错误映射为服务层错误；ErrNotFound 映射为 notFound。
func mapRepoError(err error, notFound *Error) error {
	if err == nil {
		return nil
	}
	if notFound != nil && errors.Is(err, repository.ErrNotFound) {
		return notFound.Wrap(err)
	}
	return ErrStore.Wrap(err)
}
