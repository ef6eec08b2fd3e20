package domain

import "testing"

func TestAuthorizeRestoreDevToProdAlwaysBlocked(t *testing.T) {
	for _, confirmed := range []bool{false, true} {
		decision := AuthorizeRestore(EnvironmentDev, EnvironmentProd, confirmed)
		if decision.Outcome != OutcomeBlocked {
			t.Errorf("dev->prod confirmed=%v: outcome = %s, want blocked", confirmed, decision.Outcome)
		}
		if len(decision.CredentialModes) != 0 {
			t.Errorf("dev->prod confirmed=%v: blocked decision must not permit credential modes", confirmed)
		}
	}
}

func TestAuthorizeRestoreProdTargetRequiresConfirmation(t *testing.T) {
	for _, source := range []Environment{EnvironmentProd, EnvironmentUnknown} {
		decision := AuthorizeRestore(source, EnvironmentProd, false)
		if decision.Outcome != OutcomeConfirmationRequired {
			t.Errorf("%s->prod unconfirmed: outcome = %s, want confirmation_required", source, decision.Outcome)
		}
	}
}

func TestAuthorizeRestoreProdTargetManualCredentialsOnly(t *testing.T) {
	for _, source := range []Environment{EnvironmentProd, EnvironmentUnknown} {
		decision := AuthorizeRestore(source, EnvironmentProd, true)
		if decision.Outcome != OutcomeAllowed {
			t.Errorf("%s->prod confirmed: outcome = %s, want allowed", source, decision.Outcome)
		}
		if !decision.Permits(CredentialModeManual) {
			t.Errorf("%s->prod confirmed: manual credentials must be permitted", source)
		}
		if decision.Permits(CredentialModeStored) {
			t.Errorf("%s->prod confirmed: stored credentials must never be permitted for a production target", source)
		}
	}
}

func TestAuthorizeRestoreNonProdTargetAlwaysAllowed(t *testing.T) {
	sources := []Environment{EnvironmentProd, EnvironmentDev, EnvironmentUnknown}
	targets := []Environment{EnvironmentDev, EnvironmentUnknown}

	for _, source := range sources {
		for _, target := range targets {
			for _, confirmed := range []bool{false, true} {
				decision := AuthorizeRestore(source, target, confirmed)
				if decision.Outcome != OutcomeAllowed {
					t.Errorf("%s->%s confirmed=%v: outcome = %s, want allowed",
						source, target, confirmed, decision.Outcome)
				}
				if !decision.Permits(CredentialModeStored) || !decision.Permits(CredentialModeManual) {
					t.Errorf("%s->%s confirmed=%v: both credential modes must be permitted",
						source, target, confirmed)
				}
			}
		}
	}
}

func TestAuthorizeRestoreScenarios(t *testing.T) {
	// Production backup restored into a development copy: no confirmation,
	// stored credentials fine.
	decision := AuthorizeRestore(EnvironmentProd, EnvironmentDev, false)
	if decision.Outcome != OutcomeAllowed || !decision.Permits(CredentialModeStored) {
		t.Errorf("prod->dev: got %+v, want allowed with stored credentials", decision)
	}

	// Artifact of unknown provenance into production: pending until
	// confirmed, then manual credentials only.
	decision = AuthorizeRestore(EnvironmentUnknown, EnvironmentProd, false)
	if decision.Outcome != OutcomeConfirmationRequired {
		t.Errorf("unknown->prod unconfirmed: got %s, want confirmation_required", decision.Outcome)
	}
	decision = AuthorizeRestore(EnvironmentUnknown, EnvironmentProd, true)
	if decision.Outcome != OutcomeAllowed || !decision.Permits(CredentialModeManual) || decision.Permits(CredentialModeStored) {
		t.Errorf("unknown->prod confirmed: got %+v, want allowed with manual credentials only", decision)
	}
}

func TestAuthorizeRestoreIdempotent(t *testing.T) {
	first := AuthorizeRestore(EnvironmentUnknown, EnvironmentProd, true)
	second := AuthorizeRestore(EnvironmentUnknown, EnvironmentProd, true)
	if first.Outcome != second.Outcome || first.Reason != second.Reason ||
		len(first.CredentialModes) != len(second.CredentialModes) {
		t.Errorf("repeated evaluation differed: %+v vs %+v", first, second)
	}
}

func TestParseEnvironment(t *testing.T) {
	tests := []struct {
		in   string
		want Environment
	}{
		{"prod", EnvironmentProd},
		{"dev", EnvironmentDev},
		{"", EnvironmentUnknown},
		{"staging", EnvironmentUnknown},
		{"PROD", EnvironmentUnknown},
	}

	for _, tt := range tests {
		if got := ParseEnvironment(tt.in); got != tt.want {
			t.Errorf("ParseEnvironment(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
