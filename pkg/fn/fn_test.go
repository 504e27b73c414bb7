package fn

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func TestResult_OkErr(t *testing.T) {
	ok := Ok(42)
	if !ok.IsOk() || ok.IsErr() {
		t.Error("Ok result misreported")
	}
	if v, _ := ok.Unwrap(); v != 42 {
		t.Errorf("Unwrap = %d", v)
	}

	e := Err[int](errors.New("boom"))
	if e.IsOk() || !e.IsErr() {
		t.Error("Err result misreported")
	}
	if e.UnwrapOr(7) != 7 {
		t.Error("UnwrapOr fallback not used")
	}
}

func TestFromPair(t *testing.T) {
	if r := FromPair(1, nil); r.IsErr() {
		t.Error("nil error should yield Ok")
	}
	if r := FromPair(0, errors.New("x")); r.IsOk() {
		t.Error("error should yield Err")
	}
}

func TestMapResult(t *testing.T) {
	r := MapResult(Ok(2), func(n int) string { return strconv.Itoa(n * 10) })
	if v, _ := r.Unwrap(); v != "20" {
		t.Errorf("got %q", v)
	}
	errR := MapResult(Err[int](errors.New("x")), func(n int) string { return "" })
	if errR.IsOk() {
		t.Error("error should propagate")
	}
}

func TestCollect(t *testing.T) {
	all := Collect([]Result[int]{Ok(1), Ok(2), Ok(3)})
	vals, err := all.Unwrap()
	if err != nil || len(vals) != 3 {
		t.Fatalf("got %v, %v", vals, err)
	}

	mixed := Collect([]Result[int]{Ok(1), Err[int](errors.New("bad")), Ok(3)})
	if mixed.IsOk() {
		t.Fatal("expected first error to surface")
	}
}

func TestThen_ShortCircuits(t *testing.T) {
	first := func(_ context.Context, n int) Result[int] {
		return Err[int](errors.New("first failed"))
	}
	var secondRan bool
	second := func(_ context.Context, n int) Result[string] {
		secondRan = true
		return Ok("never")
	}

	result := Then(first, second)(context.Background(), 1)
	if result.IsOk() || secondRan {
		t.Fatal("second stage must not run after a failure")
	}
}

func TestThen_PassesValue(t *testing.T) {
	double := func(_ context.Context, n int) Result[int] { return Ok(n * 2) }
	toStr := func(_ context.Context, n int) Result[string] { return Ok(strconv.Itoa(n)) }

	v, err := Then(double, toStr)(context.Background(), 21).Unwrap()
	if err != nil || v != "42" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	var calls int
	opts := RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond}
	result := Retry(context.Background(), opts, func(_ context.Context) Result[string] {
		calls++
		if calls < 3 {
			return Err[string](errors.New("transient"))
		}
		return Ok("done")
	})
	if v, err := result.Unwrap(); err != nil || v != "done" {
		t.Fatalf("got %q, %v", v, err)
	}
	if calls != 3 {
		t.Errorf("calls = %d", calls)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	var calls int
	opts := RetryOpts{MaxAttempts: 4, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond}
	result := Retry(context.Background(), opts, func(_ context.Context) Result[int] {
		calls++
		return Err[int](errors.New("always"))
	})
	if result.IsOk() {
		t.Fatal("expected failure")
	}
	if calls != 4 {
		t.Errorf("calls = %d", calls)
	}
}

func TestRetry_RetryIfRejectsError(t *testing.T) {
	permanent := errors.New("permanent")
	var calls int
	opts := RetryOpts{
		MaxAttempts: 5,
		InitialWait: time.Millisecond,
		RetryIf:     func(err error) bool { return !errors.Is(err, permanent) },
	}
	result := Retry(context.Background(), opts, func(_ context.Context) Result[int] {
		calls++
		return Err[int](permanent)
	})
	if result.IsOk() {
		t.Fatal("expected failure")
	}
	if calls != 1 {
		t.Errorf("rejected error retried: %d calls", calls)
	}
}

func TestRetry_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := RetryOpts{MaxAttempts: 3, InitialWait: time.Hour, MaxWait: time.Hour}
	result := Retry(ctx, opts, func(_ context.Context) Result[int] {
		return Err[int](errors.New("fail"))
	})
	_, err := result.Unwrap()
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParMap_PreservesOrder(t *testing.T) {
	in := []int{5, 4, 3, 2, 1}
	out := ParMap(in, 2, func(n int) int { return n * 10 })
	for i, v := range out {
		if v != in[i]*10 {
			t.Fatalf("out[%d] = %d", i, v)
		}
	}
}

func TestParMap_BoundsConcurrency(t *testing.T) {
	var active, peak atomic.Int32
	in := make([]int, 20)
	ParMap(in, 3, func(int) int {
		cur := active.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		active.Add(-1)
		return 0
	})
	if peak.Load() > 3 {
		t.Errorf("peak concurrency %d exceeds worker bound", peak.Load())
	}
}

func TestSliceHelpers(t *testing.T) {
	if got := Map([]int{1, 2}, func(n int) int { return n + 1 }); got[0] != 2 || got[1] != 3 {
		t.Errorf("Map = %v", got)
	}
	if got := Filter([]int{1, 2, 3, 4}, func(n int) bool { return n%2 == 0 }); len(got) != 2 {
		t.Errorf("Filter = %v", got)
	}
	if got := Unique([]string{"a", "b", "a", "c", "b"}); len(got) != 3 || got[0] != "a" {
		t.Errorf("Unique = %v", got)
	}
}
