package main

import (
	"errors"
	"fmt"
)

// error kinds, compare with errors.Is
var (
	ErrDecode        = errors.New("decode error")
	ErrNormalization = errors.New("normalization error")
	ErrPersistence   = errors.New("persistence error")
	ErrQueueNotFound = errors.New("queue not found")

	// a fetch that returned no messages, also an ErrDecode
	ErrEmptyEnvelope = fmt.Errorf("%w: no message in envelope", ErrDecode)
)

func decodeErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrDecode}, args...)...)
}

func normalizationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNormalization}, args...)...)
}

func persistenceErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrPersistence}, args...)...)
}
