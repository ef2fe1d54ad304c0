package audithook

// Action constants for audit events.
const (
	// Account actions
	ActionAccountRegistered   = "account.registered"
	ActionAccountUnregistered = "account.unregistered"
	ActionRentWithdrawn       = "account.rent_withdrawn"

	// Balance actions
	ActionTokensDeposited = "balance.deposited"
	ActionTokensClaimed   = "balance.claimed"

	// Settlement actions
	ActionWithdrawalRequested  = "withdrawal.requested"
	ActionWithdrawalDispatched = "withdrawal.dispatched"
	ActionSettlementCommitted  = "settlement.committed"
	ActionSettlementRefunded   = "settlement.refunded"
	ActionSettlementEscrowed   = "settlement.escrowed"
	ActionProtocolViolation    = "settlement.protocol_violation"
)

// Resource constants for audit events.
const (
	ResourceAccount    = "account"
	ResourceBalance    = "balance"
	ResourceSettlement = "settlement"
)

// Category constants for audit events.
const (
	CategoryAccount    = "account"
	CategoryBalance    = "balance"
	CategorySettlement = "settlement"
	CategorySecurity   = "security"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
