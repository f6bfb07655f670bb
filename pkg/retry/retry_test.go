package retry

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"syscall"
	"testing"
	"time"
)

func lockedErr(path string) error {
	return &fs.PathError{Op: "open", Path: path, Err: lockErrnoForTest()}
}

func lockErrnoForTest() error {
	if len(lockErrnos) > 0 {
		return lockErrnos[0]
	}
	return ErrTransient
}

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.delays = append(s.delays, d)
}

func newTestPolicy(t *testing.T, attempts int, backoff Backoff) (Policy, *sleepRecorder) {
	t.Helper()
	rec := &sleepRecorder{}
	p, err := NewPolicy(attempts, backoff, WithSleep(rec.sleep))
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	return p, rec
}

func TestNewPolicyRejectsZeroAttempts(t *testing.T) {
	for _, n := range []int{0, -1} {
		if _, err := NewPolicy(n, nil); !errors.Is(err, ErrInvalidPolicy) {
			t.Errorf("NewPolicy(%d) error = %v, want ErrInvalidPolicy", n, err)
		}
	}
}

func TestTransientThenSuccess(t *testing.T) {
	const attempts = 4
	p, rec := newTestPolicy(t, attempts, Linear(10*time.Millisecond))

	calls := 0
	got, err := Do(p, func() (string, error) {
		calls++
		if calls < attempts {
			return "", lockedErr("/tmp/app.pdb")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("Do() = %q, want ok", got)
	}
	if calls != attempts {
		t.Errorf("calls = %d, want %d", calls, attempts)
	}

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}
	if len(rec.delays) != len(want) {
		t.Fatalf("sleeps = %v, want %v", rec.delays, want)
	}
	for i := range want {
		if rec.delays[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, rec.delays[i], want[i])
		}
	}
}

func TestAlwaysTransientAggregates(t *testing.T) {
	const attempts = 3
	p, _ := newTestPolicy(t, attempts, Constant(time.Millisecond))

	calls := 0
	_, err := Do(p, func() (int, error) {
		calls++
		return 0, fmt.Errorf("attempt %d: %w", calls, ErrTransient)
	})

	var agg *AggregateError
	if !errors.As(err, &agg) {
		t.Fatalf("error = %v, want *AggregateError", err)
	}
	if calls != attempts {
		t.Errorf("calls = %d, want %d", calls, attempts)
	}
	if len(agg.Errors) != attempts {
		t.Errorf("aggregate holds %d errors, want %d", len(agg.Errors), attempts)
	}
	if !errors.Is(err, ErrTransient) {
		t.Error("aggregate should unwrap to ErrTransient")
	}
	if agg.Last().Error() != "attempt 3: transient failure" {
		t.Errorf("Last() = %q", agg.Last())
	}
}

func TestMissingDirectoryIsNoOp(t *testing.T) {
	for _, attempts := range []int{1, 3, 10} {
		t.Run(fmt.Sprintf("attempts=%d", attempts), func(t *testing.T) {
			p, rec := newTestPolicy(t, attempts, Constant(time.Second))

			calls := 0
			got, report, err := DoWithReport(p, func() ([]byte, error) {
				calls++
				return []byte("data"), fmt.Errorf("open /gone/app.dll: %w", ErrDirectoryNotFound)
			})
			if err != nil {
				t.Fatalf("error = %v, want nil", err)
			}
			if got != nil {
				t.Errorf("value = %v, want zero", got)
			}
			if calls != 1 {
				t.Errorf("calls = %d, want 1", calls)
			}
			if !report.SkippedMissingDirectory {
				t.Error("SkippedMissingDirectory not set")
			}
			if len(rec.delays) != 0 {
				t.Errorf("slept %v", rec.delays)
			}
		})
	}
}

func TestUnclassifiedPropagatesImmediately(t *testing.T) {
	p, rec := newTestPolicy(t, 5, Constant(time.Second))
	boom := errors.New("boom")

	calls := 0
	err := Run(p, func() error {
		calls++
		return boom
	})
	if err != boom {
		t.Errorf("error = %v, want the original error unchanged", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if len(rec.delays) != 0 {
		t.Errorf("slept %v", rec.delays)
	}
}

func TestSingleAttemptNeverSleeps(t *testing.T) {
	p, rec := newTestPolicy(t, 1, Constant(time.Second))

	calls := 0
	err := Run(p, func() error {
		calls++
		return lockedErr("/tmp/x")
	})
	var agg *AggregateError
	if !errors.As(err, &agg) || len(agg.Errors) != 1 {
		t.Fatalf("error = %v, want aggregate of one", err)
	}
	if calls != 1 || len(rec.delays) != 0 {
		t.Errorf("calls = %d sleeps = %v", calls, rec.delays)
	}
}

func TestObserverSeesEveryRetry(t *testing.T) {
	type call struct {
		attempt int
		delay   time.Duration
	}
	var seen []call
	rec := &sleepRecorder{}
	p, err := NewPolicy(3, Linear(time.Millisecond),
		WithSleep(rec.sleep),
		WithObserver(ObserverFunc(func(attempt int, err error, delay time.Duration) {
			if err == nil {
				t.Error("observer got nil error")
			}
			seen = append(seen, call{attempt, delay})
		})),
	)
	if err != nil {
		t.Fatal(err)
	}

	_ = Run(p, func() error { return ErrTransient })

	want := []call{{1, time.Millisecond}, {2, 2 * time.Millisecond}}
	if len(seen) != len(want) {
		t.Fatalf("observer calls = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("observer[%d] = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestWithLeavesOriginalUntouched(t *testing.T) {
	base, rec := newTestPolicy(t, 2, nil)
	var count int
	derived := base.With(WithObserver(ObserverFunc(func(int, error, time.Duration) { count++ })))

	_ = Run(base, func() error { return ErrTransient })
	if count != 0 {
		t.Errorf("base policy notified derived observer")
	}
	_ = Run(derived, func() error { return ErrTransient })
	if count != 1 {
		t.Errorf("derived observer calls = %d, want 1", count)
	}
	if len(rec.delays) != 0 {
		t.Errorf("nil backoff should not sleep, got %v", rec.delays)
	}
}

func TestZeroPolicyUsesDefaults(t *testing.T) {
	var p Policy
	if p.MaxAttempts() != DefaultMaxAttempts {
		t.Errorf("MaxAttempts() = %d, want %d", p.MaxAttempts(), DefaultMaxAttempts)
	}
	if p.Delay(2) != 2*DefaultBackoffStep {
		t.Errorf("Delay(2) = %v", p.Delay(2))
	}
	if p.Delay(0) != 0 {
		t.Errorf("Delay(0) = %v, want 0", p.Delay(0))
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureClass
	}{
		{"nil", nil, Unclassified},
		{"plain", errors.New("bad image"), Unclassified},
		{"sentinel transient", fmt.Errorf("x: %w", ErrTransient), Transient},
		{"path error", &fs.PathError{Op: "open", Path: "/a", Err: fs.ErrNotExist}, Transient},
		{"permission path error", &fs.PathError{Op: "open", Path: "/a", Err: fs.ErrPermission}, Unclassified},
		{"locked", lockedErr("/a"), Transient},
		{"missing directory", fmt.Errorf("open /a/b: %w", ErrDirectoryNotFound), Permanent},
		{"missing directory beats path error",
			fmt.Errorf("%w: %w", ErrDirectoryNotFound, &fs.PathError{Op: "open", Path: "/a", Err: fs.ErrNotExist}),
			Permanent},
		{"temporary", tempErr{true}, Transient},
		{"not temporary", tempErr{false}, Unclassified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

type tempErr struct{ temp bool }

func (e tempErr) Error() string   { return "temp" }
func (e tempErr) Temporary() bool { return e.temp }

func TestClassifyAccessErrnos(t *testing.T) {
	if len(fatalErrnos) == 0 {
		t.Skip("access errors stay transient on this platform")
	}
	for _, errno := range fatalErrnos {
		t.Run(errno.Error(), func(t *testing.T) {
			err := &fs.PathError{Op: "open", Path: "/x/App.dll", Err: errno}
			if got := Classify(err); got != Unclassified {
				t.Errorf("Classify(%v) = %v, want unclassified", err, got)
			}
		})
	}
}

func TestPermissionDeniedIsNotRetried(t *testing.T) {
	calls := 0
	denied := &fs.PathError{Op: "open", Path: "/x/App.dll", Err: fs.ErrPermission}
	p, err := NewPolicy(3, Constant(time.Millisecond), WithSleep(func(time.Duration) {}))
	if err != nil {
		t.Fatal(err)
	}

	err = Run(p, func() error {
		calls++
		return denied
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if err != denied {
		t.Errorf("err = %v, want the permission error unchanged", err)
	}
}

func TestIsLockError(t *testing.T) {
	if len(lockErrnos) == 0 {
		t.Skip("no lock errnos on this platform")
	}
	if !IsLockError(lockedErr("/a")) {
		t.Error("expected lock error")
	}
	if IsLockError(&fs.PathError{Op: "open", Path: "/a", Err: syscall.ENOENT}) {
		t.Error("ENOENT is not a lock error")
	}
}

func TestBackoffStrategies(t *testing.T) {
	tests := []struct {
		name    string
		backoff Backoff
		attempt int
		want    time.Duration
	}{
		{"constant", Constant(50 * time.Millisecond), 3, 50 * time.Millisecond},
		{"linear first", Linear(250 * time.Millisecond), 1, 250 * time.Millisecond},
		{"linear third", Linear(250 * time.Millisecond), 3, 750 * time.Millisecond},
		{"exponential first", Exponential(100*time.Millisecond, 2, time.Second), 1, 100 * time.Millisecond},
		{"exponential third", Exponential(100*time.Millisecond, 2, time.Second), 3, 400 * time.Millisecond},
		{"exponential capped", Exponential(100*time.Millisecond, 2, time.Second), 10, time.Second},
		{"exponential uncapped", Exponential(time.Millisecond, 10, 0), 4, time.Second},
		{"exponential saturates", Exponential(time.Second, 2, 0), 200, time.Duration(math.MaxInt64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.backoff(tt.attempt); got != tt.want {
				t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}
