package resilience

import (
	"errors"
	"testing"
	"time"
)

var errTest = errors.New("test error")

func TestNewDefaults(t *testing.T) {
	b := New(Config{Name: "test"})
	if b.maxFailures != 5 {
		t.Errorf("maxFailures = %d, want 5", b.maxFailures)
	}
	if b.resetTimeout != 30*time.Second {
		t.Errorf("resetTimeout = %v, want 30s", b.resetTimeout)
	}
	if b.halfOpenMax != 3 {
		t.Errorf("halfOpenMax = %d, want 3", b.halfOpenMax)
	}
	if b.State() != StateClosed {
		t.Errorf("State() = %v, want closed", b.State())
	}
}

func TestExecutePassesThroughWhileClosed(t *testing.T) {
	b := New(Config{Name: "test"})

	calls := 0
	err := b.Execute(func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}

	if err := b.Execute(func() error { return errTest }); !errors.Is(err, errTest) {
		t.Errorf("Execute() error = %v, want errTest", err)
	}
}

func TestOpensAfterMaxFailures(t *testing.T) {
	b := New(Config{Name: "test", MaxFailures: 3, ResetTimeout: time.Hour})

	for i := 0; i < 3; i++ {
		_ = b.Execute(func() error { return errTest })
	}
	if b.State() != StateOpen {
		t.Fatalf("State() = %v, want open", b.State())
	}

	calls := 0
	err := b.Execute(func() error {
		calls++
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Execute() error = %v, want ErrOpen", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0 while open", calls)
	}
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	b := New(Config{Name: "test", MaxFailures: 3})

	_ = b.Execute(func() error { return errTest })
	_ = b.Execute(func() error { return errTest })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return errTest })
	_ = b.Execute(func() error { return errTest })

	if b.State() != StateClosed {
		t.Errorf("State() = %v, want closed after interleaved success", b.State())
	}
}

func TestHalfOpenClosesAfterProbes(t *testing.T) {
	b := New(Config{Name: "test", MaxFailures: 1, ResetTimeout: 30 * time.Millisecond, HalfOpenMax: 2})

	_ = b.Execute(func() error { return errTest })
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("Execute() error = %v, want ErrOpen before reset timeout", err)
	}

	time.Sleep(50 * time.Millisecond)
	if b.State() != StateHalfOpen {
		t.Fatalf("State() = %v, want half-open after reset timeout", b.State())
	}

	for i := 0; i < 2; i++ {
		if err := b.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: Execute() error = %v", i, err)
		}
	}
	if b.State() != StateClosed {
		t.Errorf("State() = %v, want closed after successful probes", b.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New(Config{Name: "test", MaxFailures: 1, ResetTimeout: 10 * time.Millisecond})

	_ = b.Execute(func() error { return errTest })
	time.Sleep(20 * time.Millisecond)

	if err := b.Execute(func() error { return errTest }); !errors.Is(err, errTest) {
		t.Fatalf("probe: Execute() error = %v, want errTest", err)
	}
	if b.State() != StateOpen {
		t.Errorf("State() = %v, want open after failed probe", b.State())
	}
}

func TestReset(t *testing.T) {
	b := New(Config{Name: "test", MaxFailures: 1, ResetTimeout: time.Hour})

	_ = b.Execute(func() error { return errTest })
	if b.State() != StateOpen {
		t.Fatalf("State() = %v, want open", b.State())
	}

	b.Reset()
	if b.State() != StateClosed {
		t.Errorf("State() = %v, want closed after Reset", b.State())
	}
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Errorf("Execute() error = %v after Reset", err)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(42):     "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestConcurrentExecute(t *testing.T) {
	b := New(Config{Name: "test", MaxFailures: 100})

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 50; j++ {
				_ = b.Execute(func() error {
					if j%2 == 0 {
						return errTest
					}
					return nil
				})
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	if b.State() != StateClosed {
		t.Errorf("State() = %v, want closed", b.State())
	}
}
