package custody

import "github.com/xraph/custody/id"

// ID is the primary identifier type for all Custody entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

// SettlementID identifies a withdrawal settlement.
type SettlementID = id.SettlementID

// ParseSettlementID parses a stl_ TypeID string.
var ParseSettlementID = id.ParseSettlementID
