package service

import (
	"errors"
	"fmt"
	"strings"

	"term-forge/internal/validation"
)

var (
	ErrNoOntology      = errors.New("no ontology specified")
	ErrNoInputs        = errors.New("no term generation parameters")
	ErrNoTermID        = errors.New("no term specified")
	ErrMissingIdentity = errors.New("an identity is required to commit")
	ErrValidation      = errors.New("invalid term generation parameters")

	// ErrNoTermsGenerated is returned when no input produced a candidate.
	ErrNoTermsGenerated = errors.New("no terms generated")
	// ErrCommitBlocked is returned when a batch cannot be committed as a
	// whole because some input failed or a candidate carries warnings.
	ErrCommitBlocked = errors.New("commit blocked")
)

// Problem is a validation error of one input of a request.
type Problem struct {
	Input int `json:"input"`
	validation.Error
}

// InputError rejects a request before any term is generated. Problems holds
// every validation error found across all inputs.
type InputError struct {
	Err      error
	Problems []Problem
}

func (e *InputError) Error() string {
	if len(e.Problems) == 0 {
		return e.Err.Error()
	}
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = fmt.Sprintf("input %d: %s", p.Input, p.Error.Error())
	}
	return fmt.Sprintf("%v: %s", e.Err, strings.Join(msgs, "; "))
}

func (e *InputError) Unwrap() error {
	return e.Err
}

func inputError(format string, args ...any) error {
	return &InputError{Err: fmt.Errorf(format, args...)}
}

// CredentialError reports an identity whose secret was not accepted.
type CredentialError struct {
	Identity string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("unknown identity or wrong secret for %q", e.Identity)
}
