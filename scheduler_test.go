package corort

import (
	"runtime"
	"testing"
)

func TestCurrentSchedulerSingletonPerThread(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	s1 := CurrentScheduler()
	s2 := CurrentScheduler()
	if s1 != s2 {
		t.Fatalf("CurrentScheduler returned different instances on the same thread")
	}
	if s1.Bootstrap() == nil {
		t.Fatalf("bootstrap coroutine not initialized")
	}
	if s1.Current() != s1.Bootstrap() {
		t.Fatalf("Current() should be the bootstrap coroutine at baseline depth")
	}
}

func TestSchedulerYieldRoundTrip(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	sched := CurrentScheduler()
	baseDepth := sched.Depth()

	var ranToYield, ranAfterYield bool
	co := Spawn(sched, Attr{}, func() {
		ranToYield = true
		sched.Yield()
		ranAfterYield = true
	})

	co.Resume()
	if !ranToYield {
		t.Fatalf("coroutine body did not run up to its yield point")
	}
	if ranAfterYield {
		t.Fatalf("coroutine resumed past its yield point before a second Resume")
	}
	if co.State() != StateReady {
		t.Fatalf("yielded coroutine should be StateReady, got %v", co.State())
	}
	if sched.Depth() != baseDepth {
		t.Fatalf("depth after yield = %d, want back to baseline %d", sched.Depth(), baseDepth)
	}

	co.Resume()
	if !ranAfterYield {
		t.Fatalf("second Resume did not run the coroutine past its yield point")
	}
	if co.State() != StateTerminated {
		t.Fatalf("coroutine should be terminated after entry returns, got %v", co.State())
	}
	if sched.Depth() != baseDepth {
		t.Fatalf("depth after termination = %d, want back to baseline %d", sched.Depth(), baseDepth)
	}
}

func TestSchedulerYieldOnBootstrapPanics(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	sched := CurrentScheduler()
	if sched.Depth() != 1 {
		t.Skip("scheduler not at baseline depth, skipping illegal-yield check")
	}

	defer func() {
		r := recover()
		if r != ErrIllegalYield {
			t.Fatalf("expected panic ErrIllegalYield, got %v", r)
		}
	}()
	sched.Yield()
}

func TestSchedulerYieldOnBootstrapNoopWithoutAssertions(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	sched := CurrentScheduler()
	if sched.Depth() != 1 {
		t.Skip("scheduler not at baseline depth, skipping illegal-yield check")
	}

	AssertionsEnabled = false
	defer func() { AssertionsEnabled = true }()

	sched.Yield() // must not panic
	if sched.Depth() != 1 {
		t.Fatalf("no-op yield must not alter the invocation stack")
	}
}

func TestResumeOfTerminatedCoroutineIsNoop(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	sched := CurrentScheduler()
	co := Spawn(sched, Attr{}, func() {})
	co.Resume()
	if co.State() != StateTerminated {
		t.Fatalf("expected coroutine to terminate after its only resume")
	}

	if err := co.TryResume(); err != ErrResumeTerminated {
		t.Fatalf("TryResume on terminated coroutine = %v, want ErrResumeTerminated", err)
	}
}
