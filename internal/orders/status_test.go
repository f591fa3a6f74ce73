package orders

import "testing"

func TestCanTransition(t *testing.T) {
	all := []Status{StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled}

	allowed := map[[2]Status]bool{
		{StatusPending, StatusConfirmed}:    true,
		{StatusPending, StatusCancelled}:    true,
		{StatusConfirmed, StatusProcessing}: true,
		{StatusConfirmed, StatusCancelled}:  true,
		{StatusProcessing, StatusShipped}:   true,
		{StatusShipped, StatusDelivered}:    true,
	}

	// every pair outside the allowed set must be rejected, including
	// self-transitions and anything out of a terminal state
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]Status{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCanTransitionUnknownStatus(t *testing.T) {
	if CanTransition(Status("Bogus"), StatusConfirmed) {
		t.Error("unknown source status must not transition")
	}
	if CanTransition(StatusPending, Status("Bogus")) {
		t.Error("unknown target status must not transition")
	}
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("Shipped")
	if err != nil || st != StatusShipped {
		t.Errorf("ParseStatus(Shipped) = %v, %v", st, err)
	}
	if _, err := ParseStatus("shipped"); err == nil {
		t.Error("statuses are case sensitive, lowercase must fail")
	}
	if _, err := ParseStatus(""); err == nil {
		t.Error("empty status must fail")
	}
}
