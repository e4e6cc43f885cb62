// Copyright 2021 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package moerr

import (
	"context"
	"fmt"
)

type ErrorCode uint16

const (
	Ok ErrorCode = iota

	// user errors
	ErrInvalidInput
	ErrInvalidArg
	ErrBadConfig

	// internal errors
	ErrInternal
	ErrNYI
	ErrOOM
	ErrStreamClosed
)

var errorNames = map[ErrorCode]string{
	Ok:              "ok",
	ErrInvalidInput: "invalid input",
	ErrInvalidArg:   "invalid argument",
	ErrBadConfig:    "invalid configuration",
	ErrInternal:     "internal error",
	ErrNYI:          "not yet implemented",
	ErrOOM:          "out of memory",
	ErrStreamClosed: "stream closed",
}

// Error is the only error type crossing package boundaries in this module.
type Error struct {
	code    ErrorCode
	message string
}

func (e *Error) Error() string {
	return e.message
}

func (e *Error) ErrorCode() ErrorCode {
	return e.code
}

func (e *Error) Is(other error) bool {
	me, ok := other.(*Error)
	if !ok {
		return false
	}
	return me.code == e.code
}

func newError(_ context.Context, code ErrorCode, args ...any) *Error {
	var msg string
	if len(args) == 0 {
		msg = errorNames[code]
	} else {
		msg = fmt.Sprintf("%s: %s", errorNames[code], fmt.Sprint(args...))
	}
	return &Error{code: code, message: msg}
}

func IsMoErrCode(e error, code ErrorCode) bool {
	me, ok := e.(*Error)
	if !ok {
		return false
	}
	return me.code == code
}

func NewInvalidInput(ctx context.Context, msg string, args ...any) *Error {
	return newError(ctx, ErrInvalidInput, fmt.Sprintf(msg, args...))
}

func NewInvalidArg(ctx context.Context, arg string, val any) *Error {
	return newError(ctx, ErrInvalidArg, fmt.Sprintf("%s has invalid value %v", arg, val))
}

func NewBadConfig(ctx context.Context, msg string, args ...any) *Error {
	return newError(ctx, ErrBadConfig, fmt.Sprintf(msg, args...))
}

func NewInternalError(ctx context.Context, msg string, args ...any) *Error {
	return newError(ctx, ErrInternal, fmt.Sprintf(msg, args...))
}

func NewInternalErrorNoCtx(msg string, args ...any) *Error {
	return NewInternalError(context.Background(), msg, args...)
}

func NewNYI(ctx context.Context, msg string, args ...any) *Error {
	return newError(ctx, ErrNYI, fmt.Sprintf(msg, args...))
}

func NewNYINoCtx(msg string, args ...any) *Error {
	return NewNYI(context.Background(), msg, args...)
}

func NewOOM(ctx context.Context) *Error {
	return newError(ctx, ErrOOM)
}

func NewStreamClosed(ctx context.Context) *Error {
	return newError(ctx, ErrStreamClosed)
}
