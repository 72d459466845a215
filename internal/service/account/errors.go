package account

import "errors"

// Sentinel errors for the account registry.
var (
	ErrNotFound     = errors.New("account not found")
	ErrInvalidQuota = errors.New("invalid quota configuration")
	ErrArchived     = errors.New("account is archived")
)
