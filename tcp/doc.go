// Package tcp is a small coroutine-native TCP server framework sitting
// atop corort's scheduler, reactor, and FD registry. It is an external
// collaborator in the sense of the runtime's own design: it never
// reaches into scheduler/reactor internals, only the public Spawn,
// Resume, Register, and FD-registry surface.
package tcp
