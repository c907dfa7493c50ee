// Package corort is a single-process, user-space concurrency runtime:
// stackful-style coroutines, a non-blocking I/O reactor, a hashed timer
// wheel, and transparent interception of blocking syscalls, so that
// ordinary-looking sequential code runs cooperatively on one OS thread.
//
// # Architecture
//
// A [Scheduler] owns one worker's invocation stack of [Coroutine] values,
// with the worker's bootstrap coroutine always at the bottom. A
// [Coroutine] is a unit of suspendable execution realized as a real
// goroutine parked on its own handoff channel (see "Machine context"
// below); it resumes into the top of its scheduler's invocation stack and
// yields back to whoever resumed it.
//
// A [Reactor] wraps an edge-triggered epoll instance (see poller_linux.go)
// together with an embedded [Wheel] (hashed timer wheel). [Reactor.Register]
// and [Reactor.Cancel] manage per-descriptor interest; [Reactor.EventLoop]
// combines readiness notification and timer expiry into one event loop.
//
// The [hook] subpackage intercepts a fixed list of blocking syscalls and
// converts would-block conditions into "register readiness, yield, retry"
// using a [Scheduler] and [Reactor] pair, making ordinary blocking-style
// code run cooperatively without code changes.
//
// # Machine context
//
// Go programs cannot portably swap raw CPU register state or relocate an
// arbitrary native call stack without cgo or assembly. This package
// therefore never performs a literal stack swap: each [Coroutine] is a
// goroutine, and "resuming" one is a channel send followed by a channel
// receive of an acknowledgement, which transfers control exactly as a
// context switch would (only one goroutine among a scheduler's coroutines
// ever runs past its resume gate at a time). The "shared stack pool" of a
// [StackPool] is realized as a bounded collection of fixed-size []byte
// scratch regions; a [Coroutine] configured with a pool is handed a
// region's bytes as addressable scratch memory, and the save/restore
// algorithm in [Coroutine.Resume] is performed, byte for byte, against
// that region whenever the pool reassigns it to a different occupant.
//
// # Usage
//
//	sched := corort.CurrentScheduler()
//	co := corort.Spawn(sched, corort.Attr{StackSize: 64 * 1024}, func() {
//	    defer fmt.Println("done")
//	    sched.Yield()
//	})
//	co.Resume()
package corort
