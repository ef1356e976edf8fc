package app

import (
	"errors"
	"fmt"

	"github.com/fabianaguero/truco/internal/rules"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrIllegalAction       = errors.New("illegal action")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrRulesetUnavailable  = rules.ErrRulesetUnavailable
)

func illegal(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrIllegalAction, fmt.Sprintf(format, args...))
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
