package calculator

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData matches every InsufficientDataError via errors.Is.
	ErrInsufficientData = errors.New("insufficient data")
	ErrInvalidPeriod    = errors.New("period must be positive")
)

// InsufficientDataError reports that a series is shorter than an indicator window.
type InsufficientDataError struct {
	Indicator string
	Need      int
	Have      int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("not enough data for %s: need %d, have %d", e.Indicator, e.Need, e.Have)
}

func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

func insufficient(indicator string, need, have int) error {
	return &InsufficientDataError{Indicator: indicator, Need: need, Have: have}
}
