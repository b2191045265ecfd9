package validation

import "testing"

func TestRequired(t *testing.T) {
	if err := Required("reason", "")(); err == nil {
		t.Error("expected error for empty value")
	}
	if err := Required("reason", "   ")(); err == nil {
		t.Error("expected error for whitespace value")
	}
	if err := Required("reason", "work incomplete")(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMaxLength(t *testing.T) {
	if err := MaxLength("details", "short", 10)(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	long := make([]byte, 11)
	if err := MaxLength("details", string(long), 10)(); err == nil {
		t.Error("expected error for long value")
	}
}

func TestPositiveAmount(t *testing.T) {
	if err := PositiveAmount("amount", 10000)(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := PositiveAmount("amount", 0)(); err == nil {
		t.Error("expected error for zero amount")
	}
	if err := PositiveAmount("amount", -500)(); err == nil {
		t.Error("expected error for negative amount")
	}
}

func TestRatePercent(t *testing.T) {
	for _, rate := range []int{0, 15, 100} {
		if err := RatePercent("rate", rate)(); err != nil {
			t.Errorf("rate %d: unexpected error: %v", rate, err)
		}
	}
	for _, rate := range []int{-1, 101} {
		if err := RatePercent("rate", rate)(); err == nil {
			t.Errorf("rate %d: expected error", rate)
		}
	}
}

func TestValidRole(t *testing.T) {
	if err := ValidRole("opened_by_role", "client")(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidRole("opened_by_role", "technician")(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidRole("opened_by_role", "admin")(); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestValidate(t *testing.T) {
	errs := Validate(
		Required("ticket_id", ""),
		PositiveAmount("amount", -1),
	)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(errs))
	}
	if errs.Error() == "" {
		t.Error("expected non-empty error message")
	}

	errs = Validate(
		Required("ticket_id", "tkt_1"),
		PositiveAmount("amount", 10000),
	)
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello\x00world  ", 100); got != "helloworld" {
		t.Errorf("got %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Errorf("got %q", got)
	}
}
