package domain

type RestoreOutcome string

const (
	// OutcomeAllowed means the restore may proceed with one of the
	// permitted credential modes.
	OutcomeAllowed RestoreOutcome = "allowed"
	// OutcomeBlocked means the restore is refused outright. There is no
	// override.
	OutcomeBlocked RestoreOutcome = "blocked"
	// OutcomeConfirmationRequired means the caller must re-submit with the
	// confirmation flag set. It is a normal decision outcome, not an error.
	OutcomeConfirmationRequired RestoreOutcome = "confirmation_required"
)

type CredentialMode string

const (
	CredentialModeStored CredentialMode = "stored" // stored database record supplies the connection
	CredentialModeManual CredentialMode = "manual" // caller supplies the connection inline
)

// RestoreDecision is the result of AuthorizeRestore. CredentialModes lists
// the modes the caller may use; it is a consequence of the decision, never
// caller discretion.
type RestoreDecision struct {
	Outcome         RestoreOutcome
	CredentialModes []CredentialMode
	Reason          string
}

// Permits reports whether the decision allows the given credential mode.
func (d RestoreDecision) Permits(mode CredentialMode) bool {
	for _, m := range d.CredentialModes {
		if m == mode {
			return true
		}
	}
	return false
}

// AuthorizeRestore decides whether a restore from a source environment into
// a target environment may proceed. It is pure and idempotent: the API layer
// evaluates it to answer preview requests, the orchestrator evaluates it
// when a restore is submitted, and the worker evaluates it once more at
// execution time, so stale client state can never slip a restore through.
//
// Rules, checked in order:
//
//  1. dev source into prod target is blocked, no override.
//  2. any other source into prod requires explicit confirmation and always
//     manual credentials; stored production credentials are never auto-used.
//  3. everything else is allowed with either credential mode.
//
// A source that is not explicitly dev (including unknown) does not trigger
// rule 1; rule 2 still forces confirmation for the production target.
func AuthorizeRestore(source, target Environment, confirmed bool) RestoreDecision {
	if source == EnvironmentDev && target == EnvironmentProd {
		return RestoreDecision{
			Outcome: OutcomeBlocked,
			Reason:  "cannot restore development data into production",
		}
	}

	if target == EnvironmentProd {
		if !confirmed {
			return RestoreDecision{
				Outcome:         OutcomeConfirmationRequired,
				CredentialModes: []CredentialMode{CredentialModeManual},
				Reason:          "restoring into production requires explicit confirmation",
			}
		}
		return RestoreDecision{
			Outcome:         OutcomeAllowed,
			CredentialModes: []CredentialMode{CredentialModeManual},
			Reason:          "production targets require manually entered credentials",
		}
	}

	return RestoreDecision{
		Outcome:         OutcomeAllowed,
		CredentialModes: []CredentialMode{CredentialModeStored, CredentialModeManual},
	}
}
