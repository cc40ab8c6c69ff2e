package queue

import "testing"

func TestValidTransition(t *testing.T) {
	cases := []struct {
		from, to EntryStatus
		want     bool
	}{
		{StatusWaiting, StatusCalled, true},
		{StatusCalled, StatusInProgress, true},
		{StatusWaiting, StatusInProgress, true},
		{StatusInProgress, StatusDone, true},
		{StatusWaiting, StatusCancelled, true},
		{StatusCalled, StatusCancelled, true},
		{StatusInProgress, StatusCancelled, true},

		{StatusWaiting, StatusDone, false},
		{StatusCalled, StatusDone, false},
		{StatusCalled, StatusCalled, false},
		{StatusDone, StatusCancelled, false},
		{StatusCancelled, StatusDone, false},
		{StatusDone, StatusWaiting, false},
		{StatusInProgress, StatusCalled, false},
	}
	for _, tc := range cases {
		if got := ValidTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("ValidTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []EntryStatus{StatusWaiting, StatusCalled, StatusInProgress} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []EntryStatus{StatusDone, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestStrategyFor(t *testing.T) {
	if StrategyFor(OrderFIFO).Name() != "fifo" {
		t.Error("expected fifo strategy")
	}
	if StrategyFor(OrderAcuity).Name() != "acuity" {
		t.Error("expected acuity strategy")
	}
	if StrategyFor("bogus").Name() != "fifo" {
		t.Error("unknown rule should fall back to fifo")
	}
}

func TestAcuityOrdering(t *testing.T) {
	three, five := 3, 5
	a := &Entry{Position: 1, Acuity: &three}
	b := &Entry{Position: 2, Acuity: &five}
	c := &Entry{Position: 3}

	s := AcuityThenFIFO{}
	if !s.Less(b, a) {
		t.Error("higher acuity should sort first")
	}
	if !s.Less(a, c) {
		t.Error("scored entry should sort before unscored")
	}

	d := &Entry{Position: 4, Acuity: &five}
	if !s.Less(b, d) {
		t.Error("equal acuity should break ties by position")
	}

	f := FIFO{}
	if !f.Less(a, b) || f.Less(b, a) {
		t.Error("fifo should order strictly by position")
	}
}
