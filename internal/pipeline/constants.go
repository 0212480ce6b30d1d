package pipeline

const (
	// DefaultConcurrency bounds how many candidates of one batch are in
	// flight against the ledger at once.
	DefaultConcurrency = 8
)

// Outcome is what happened to one candidate of a batch.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeInvalid   Outcome = "invalid"
)
