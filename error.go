// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package confidential

import (
	"fmt"

	"github.com/luxfi/ids"

	"github.com/luxfi/confidential/engine"
)

// Error codes, one per failure kind
const (
	CodeCryptographic int32 = iota + 1
	CodeResourceLimit
	CodeBridge
	CodeMalformedPayload
	CodeTerminal
)

var kindCodes = map[engine.Kind]int32{
	engine.KindCryptographic:    CodeCryptographic,
	engine.KindResourceLimit:    CodeResourceLimit,
	engine.KindBridge:           CodeBridge,
	engine.KindMalformedPayload: CodeMalformedPayload,
	engine.KindTerminal:         CodeTerminal,
}

// Error is a proof generation failure of one task
type Error struct {
	Code    int32
	TaskID  ids.ID
	Kind    engine.Kind
	Message string
	Err     error
}

func newError(f *engine.Failure) *Error {
	code, ok := kindCodes[f.Kind]
	if !ok {
		code = CodeTerminal
	}
	return &Error{
		Code:    code,
		TaskID:  f.TaskID,
		Kind:    f.Kind,
		Message: f.Err.Error(),
		Err:     f,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("proof generation failed for task %s (%s, code %d): %s", e.TaskID, e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}
