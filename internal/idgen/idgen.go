package idgen

import (
	"github.com/google/uuid"
)

// ID prefixes for different models
const (
	PrefixInstance = "inst_"
	PrefixUser     = "usr_"
)

// NewInstance generates a client instance ID with inst_ prefix
func NewInstance() string {
	return PrefixInstance + uuid.New().String()
}

// NewUser generates a user ID with usr_ prefix
func NewUser() string {
	return PrefixUser + uuid.New().String()
}

// New generates a generic UUID without prefix (for internal use only)
func New() string {
	return uuid.New().String()
}
