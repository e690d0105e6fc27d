package domain

import (
	"github.com/google/uuid"

	dErrors "keystone/pkg/domain-errors"
)

// Typed ID wrappers keep user, tenant, and elevation identifiers from being
// mixed up at compile time. Construct via the Parse* functions at trust
// boundaries; direct casting bypasses validation.
type (
	UserID      uuid.UUID
	TenantID    uuid.UUID
	ElevationID uuid.UUID
)

// NewElevationID mints a fresh elevation identifier.
func NewElevationID() ElevationID {
	return ElevationID(uuid.New())
}

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return u, nil
}

// ParseUserID constructs a UserID from external input.
// Errors: CodeInvalidInput when the value is empty, malformed, or nil.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user ID")
	return UserID(u), err
}

// ParseTenantID constructs a TenantID from external input.
func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID(s, "tenant ID")
	return TenantID(u), err
}

// ParseElevationID constructs an ElevationID from external input.
func ParseElevationID(s string) (ElevationID, error) {
	u, err := parseUUID(s, "elevation ID")
	return ElevationID(u), err
}

func (id UserID) String() string      { return uuid.UUID(id).String() }
func (id TenantID) String() string    { return uuid.UUID(id).String() }
func (id ElevationID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id TenantID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ElevationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
