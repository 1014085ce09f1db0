// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package stretch

import (
	"errors"
	"fmt"
)

// Invalid input, such as an absent or empty image or out-of-range parameters.
// Raised before the image is modified
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return "input error: " + e.Msg }

func newInputError(format string, args ...interface{}) error {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

// Statistics or parameters outside the valid domain of the stretch solver.
// Iteration is the 1-based iteration which was aborted, or 0 outside of an iteration
type DomainError struct {
	Op        string
	Iteration int
	Msg       string
}

func (e *DomainError) Error() string {
	if e.Iteration > 0 {
		return fmt.Sprintf("domain error in %s at iteration %d: %s", e.Op, e.Iteration, e.Msg)
	}
	return fmt.Sprintf("domain error in %s: %s", e.Op, e.Msg)
}

func newDomainError(op string, format string, args ...interface{}) error {
	return &DomainError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Failure of a statistics, curve or other collaborating operator. Wraps the original error
type ExternalOperatorError struct {
	Op  string
	Err error
}

func (e *ExternalOperatorError) Error() string {
	return fmt.Sprintf("%s operator failed: %s", e.Op, e.Err.Error())
}

func (e *ExternalOperatorError) Unwrap() error { return e.Err }

// Returns true if err is or wraps an InputError
func IsInputError(err error) bool {
	var e *InputError
	return errors.As(err, &e)
}

// Returns true if err is or wraps a DomainError
func IsDomainError(err error) bool {
	var e *DomainError
	return errors.As(err, &e)
}

// Returns true if err is or wraps an ExternalOperatorError
func IsExternalOperatorError(err error) bool {
	var e *ExternalOperatorError
	return errors.As(err, &e)
}
