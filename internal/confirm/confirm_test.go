package confirm

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestArmThenFireWithinWindow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	w := New(5*time.Second, clock.now)

	if got := w.Request("org-1"); got != OutcomeArmed {
		t.Fatalf("first request: got %v, want armed", got)
	}
	st := w.State("org-1")
	if st.Phase != Armed || !st.Deadline.Equal(time.Unix(1005, 0)) {
		t.Fatalf("unexpected state %+v", st)
	}

	clock.advance(4999 * time.Millisecond)
	if got := w.Request("org-1"); got != OutcomeFire {
		t.Fatalf("second request inside window: got %v, want fire", got)
	}
}

func TestWindowExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	w := New(5*time.Second, clock.now)

	w.Request("org-1")
	clock.advance(5 * time.Second)
	if st := w.State("org-1"); st.Phase != Unarmed {
		t.Fatalf("expected unarmed at deadline, got %v", st.Phase)
	}
	if got := w.Request("org-1"); got != OutcomeArmed {
		t.Fatalf("request after expiry must re-arm, got %v", got)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	w := New(time.Second, clock.now)

	w.Request("a")
	if got := w.Request("b"); got != OutcomeArmed {
		t.Fatalf("other key must arm independently, got %v", got)
	}
	if w.State("a").Phase != Armed || w.State("b").Phase != Armed {
		t.Fatal("both keys should be armed")
	}
}

func TestDisarmAndReset(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	w := New(time.Minute, clock.now)

	w.Request("a")
	w.Disarm("a")
	if w.State("a").Phase != Unarmed {
		t.Fatal("disarm must return the key to unarmed")
	}
	if got := w.Request("a"); got != OutcomeArmed {
		t.Fatalf("expected re-arm after disarm, got %v", got)
	}

	w.Request("b")
	w.Reset()
	if w.State("a").Phase != Unarmed || w.State("b").Phase != Unarmed {
		t.Fatal("reset must disarm every key")
	}
}

func TestFireDoesNotDisarm(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	w := New(time.Minute, clock.now)
	w.Request("a")
	w.Request("a")
	if got := w.Request("a"); got != OutcomeFire {
		t.Fatalf("retry inside window must fire again, got %v", got)
	}
}
