package types

import "testing"

func TestLimitUnlimited(t *testing.T) {
	if !Unlimited.IsUnlimited() {
		t.Error("Unlimited.IsUnlimited() should be true")
	}
	if Limit(0).IsUnlimited() {
		t.Error("zero is a real limit, not unlimited")
	}
	if got := Unlimited.String(); got != "unlimited" {
		t.Errorf("String() = %q, want %q", got, "unlimited")
	}
	if got := Limit(5).String(); got != "5" {
		t.Errorf("String() = %q, want %q", got, "5")
	}
}

func TestPlanPolicyFeatureEnabled(t *testing.T) {
	p := PlanPolicy{
		Plan: PlanStandard,
		Features: FeatureFlags{
			TestGeneration:         true,
			CustomizationExercises: true,
		},
	}

	cases := map[Feature]bool{
		FeatureAnalyses:  true,
		FeatureTests:     true,
		FeatureExercises: true,
		FeatureProjects:  false,
		FeatureAPI:       false,
		Feature("bogus"): false,
	}
	for f, want := range cases {
		if got := p.FeatureEnabled(f); got != want {
			t.Errorf("FeatureEnabled(%q) = %v, want %v", f, got, want)
		}
	}
}

func TestSecretStringRedacts(t *testing.T) {
	s := SecretString("super-secret")
	if s.String() != redactedPlaceholder {
		t.Errorf("String() leaked the secret: %q", s.String())
	}
	b, err := s.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if string(b) != `"***REDACTED***"` {
		t.Errorf("MarshalJSON() = %s", b)
	}
	if s.Unmask() != "super-secret" || !s.IsSet() {
		t.Error("Unmask/IsSet should expose the raw value")
	}
}

func TestApprovalStatusValid(t *testing.T) {
	for _, s := range []ApprovalStatus{ApprovalPending, ApprovalApproved, ApprovalRejected} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	for _, s := range []ApprovalStatus{"", "banned", "Approved"} {
		if s.Valid() {
			t.Errorf("%q should be invalid", s)
		}
	}
}
