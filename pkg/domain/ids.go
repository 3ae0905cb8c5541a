package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "donorlink/pkg/domain-errors"
)

// Typed identifiers keep donor and request ids from being swapped at compile time.
type (
	DonorID   uuid.UUID
	RequestID uuid.UUID
	EventID   uuid.UUID
)

const maxIDLength = 64

func (id DonorID) String() string   { return uuid.UUID(id).String() }
func (id RequestID) String() string { return uuid.UUID(id).String() }
func (id EventID) String() string   { return uuid.UUID(id).String() }

func (id DonorID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id RequestID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// NewDonorID returns a fresh random donor id.
func NewDonorID() DonorID { return DonorID(uuid.New()) }

// NewRequestID returns a fresh random request id.
func NewRequestID() RequestID { return RequestID(uuid.New()) }

// NewEventID returns a fresh random event id.
func NewEventID() EventID { return EventID(uuid.New()) }

// ParseDonorID parses a donor id received at a trust boundary.
func ParseDonorID(s string) (DonorID, error) {
	u, err := parseUUID(s, "donor id")
	if err != nil {
		return DonorID{}, err
	}
	return DonorID(u), nil
}

// ParseRequestID parses a blood request id received at a trust boundary.
func ParseRequestID(s string) (RequestID, error) {
	u, err := parseUUID(s, "request id")
	if err != nil {
		return RequestID{}, err
	}
	return RequestID(u), nil
}

func parseUUID(s, label string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	return u, nil
}

// MarshalText encodes ids as canonical UUID strings in JSON payloads.
func (id DonorID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id RequestID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id EventID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText accepts any well-formed non-nil UUID.
func (id *DonorID) UnmarshalText(b []byte) error {
	parsed, err := ParseDonorID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *RequestID) UnmarshalText(b []byte) error {
	parsed, err := ParseRequestID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
