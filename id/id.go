// Package id defines the TypeID identifiers used by Custody.
//
// Settlements carry two identifiers: the settlement ID ("stl_...") that
// hosts use to reconcile, and a transfer ID ("xfr_...") sent to the token
// platform as an idempotency key. Both are UUIDv7-based, so they sort by
// creation time.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix is the entity tag of a TypeID.
type Prefix string

const (
	PrefixSettlement Prefix = "stl"
	PrefixTransfer   Prefix = "xfr"
)

// ID is a prefix-qualified identifier. The zero value is Nil and encodes
// as an empty string or SQL NULL.
//
//nolint:recvcheck // UnmarshalText and Scan need pointer receivers.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero ID.
var Nil ID

type (
	// SettlementID identifies a settlement.
	SettlementID = ID
	// TransferID identifies the outbound transfer of a settlement.
	TransferID = ID
)

// New generates an ID with prefix. It panics on a malformed prefix.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// NewSettlementID generates a settlement ID.
func NewSettlementID() SettlementID { return New(PrefixSettlement) }

// NewTransferID generates a transfer ID.
func NewTransferID() TransferID { return New(PrefixTransfer) }

// Parse parses any TypeID string.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse: empty string")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and requires its prefix to be want.
func ParseWithPrefix(s string, want Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if got := parsed.Prefix(); got != want {
		return Nil, fmt.Errorf("id: %q is a %q id, want %q", s, got, want)
	}
	return parsed, nil
}

// ParseSettlementID parses an "stl_" identifier.
func ParseSettlementID(s string) (SettlementID, error) {
	return ParseWithPrefix(s, PrefixSettlement)
}

// ParseTransferID parses an "xfr_" identifier, as stored with each
// settlement record.
func ParseTransferID(s string) (TransferID, error) {
	return ParseWithPrefix(s, PrefixTransfer)
}

func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the entity tag, empty for Nil.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether i is the zero ID.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields Nil.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. Nil is stored as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // NULL column
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T", src)
	}
}
