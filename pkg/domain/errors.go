package domain

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrInvalidOption   = NewErr("INVALID_OPTION", "invalid paste option", http.StatusBadRequest)
	ErrNotImplemented  = NewErr("NOT_IMPLEMENTED", "not implemented yet", http.StatusNotImplemented)
	ErrInvalidRequest  = NewErr("INVALID_REQUEST", "invalid request", http.StatusBadRequest)
	ErrPasteNotFound   = NewErr("PASTE_NOT_FOUND", "paste not found", http.StatusNotFound)
	ErrHistoryDisabled = NewErr("HISTORY_DISABLED", "paste history is disabled", http.StatusNotFound)
	ErrInternalServer  = NewErr("INTERNAL_ERROR", "internal error", http.StatusInternalServerError)
)

type Err struct {
	Code   string `json:"code"`
	Msg    string `json:"message"`
	Status int    `json:"-"`
}

func (e *Err) Error() string { return e.Msg }
func NewErr(code, msg string, status int) *Err {
	return &Err{Code: code, Msg: msg, Status: status}
}

// OptionError reports a paste option that did not resolve against its table.
// It matches ErrInvalidOption with errors.Is.
type OptionError struct {
	Option string
	Value  any
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("pastebin: invalid %s option: %#v", e.Option, e.Value)
}
func (e *OptionError) Unwrap() error { return ErrInvalidOption }

type ErrResp struct {
	Error     ErrDetail `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}
type ErrDetail struct {
	Code string                 `json:"code"`
	Msg  string                 `json:"message"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

func ToResp(err error) ErrResp {
	var oe *OptionError
	if errors.As(err, &oe) {
		return ErrResp{Error: ErrDetail{
			Code: ErrInvalidOption.Code,
			Msg:  ErrInvalidOption.Msg,
			Meta: map[string]interface{}{"option": oe.Option, "value": oe.Value},
		}}
	}
	if e := asErr(err); e != nil {
		return ErrResp{Error: ErrDetail{Code: e.Code, Msg: e.Msg}}
	}
	return ErrResp{Error: ErrDetail{Code: "INTERNAL_ERROR", Msg: "internal error"}}
}
func Status(err error) int {
	if e := asErr(err); e != nil {
		return e.Status
	}
	return http.StatusInternalServerError
}
func asErr(err error) *Err {
	if e, ok := err.(*Err); ok {
		return e
	}
	if e, ok := errors.Cause(err).(*Err); ok {
		return e
	}
	var oe *OptionError
	if errors.As(err, &oe) {
		return ErrInvalidOption
	}
	var e *Err
	if errors.As(err, &e) {
		return e
	}
	return nil
}
