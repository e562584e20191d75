package workflow

import "errors"

// IdempotencyKeyMaxLength bounds the caller-supplied token so the ledger's
// unique index stays within MySQL key-length limits.
const IdempotencyKeyMaxLength = 50

var (
	ErrIdempotencyKeyEmpty   = errors.New("idempotency key cannot be empty")
	ErrIdempotencyKeyTooLong = errors.New("idempotency key cannot be longer than 50 characters")
)

// IdempotencyKey is a validated caller-supplied token. The zero value is
// invalid; construct only via ParseIdempotencyKey. Matching is exact byte
// equality, no normalization.
type IdempotencyKey struct {
	value string
}

func ParseIdempotencyKey(raw string) (IdempotencyKey, error) {
	if len(raw) == 0 {
		return IdempotencyKey{}, ErrIdempotencyKeyEmpty
	}
	if len(raw) > IdempotencyKeyMaxLength {
		return IdempotencyKey{}, ErrIdempotencyKeyTooLong
	}
	return IdempotencyKey{value: raw}, nil
}

func (k IdempotencyKey) String() string {
	return k.value
}
