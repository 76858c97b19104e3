// Copyright 2016 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package archive

import (
	"fmt"

	"github.com/pkg/errors"
)

// TransportError wraps a failed or timed-out archive query. It aborts the
// current selectTask invocation; the driver shell logs and retries on the
// next tick.
type TransportError struct {
	Archive ServerRef
	Op      string
	Cause   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s against %s: %v", e.Op, e.Archive, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// NewTransportError wraps cause as a TransportError, attaching a stack
// trace to it via pkg/errors' WithStack.
func NewTransportError(a ServerRef, op string, cause error) *TransportError {
	return &TransportError{Archive: a, Op: op, Cause: errors.WithStack(cause)}
}

// InvariantViolation reports that the archive returned data inconsistent
// with the invariants the scheduler core relies on (e.g. a diff list that
// breaks monotonicity, or a BaseState inconsistent with the restorable
// list). It aborts the current invocation; the executor is expected to
// flag the volume for operator attention.
type InvariantViolation struct {
	Vol     string
	Archive ServerRef
	Reason  string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation on vol=%s archive=%s: %s", e.Vol, e.Archive, e.Reason)
}

// NewInvariantViolation builds an InvariantViolation with a formatted reason.
func NewInvariantViolation(a ServerRef, vol, format string, args ...interface{}) *InvariantViolation {
	return &InvariantViolation{Vol: vol, Archive: a, Reason: fmt.Sprintf(format, args...)}
}
