// Package storage provides the data persistence layer for the ledger,
// processed-message tracking, conflicts, and archive metadata.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/inward-bound/internal/model"
)

// Validation errors.
var (
	ErrNilContext     = errors.New("context cannot be nil")
	ErrEmptyString    = errors.New("string parameter cannot be empty")
	ErrInvalidRecord  = errors.New("invalid transaction record")
	ErrInvalidOutcome = errors.New("invalid processing outcome")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateRecord validates a transaction record before it reaches the ledger.
func validateRecord(record model.TransactionRecord) error {
	if strings.TrimSpace(record.TransactionReference) == "" {
		return fmt.Errorf("%w: missing transaction reference", ErrInvalidRecord)
	}
	if record.Amount.Valid && record.Amount.Decimal.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidRecord, record.Amount.Decimal)
	}
	return nil
}
