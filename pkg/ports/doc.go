/*
Package ports defines the driven-side interfaces of the coordination core.

Adapters (memory, redis, sqlite) implement these interfaces; the coordinator
and the HTTP gateway depend only on the contracts. The shared contract test
suite in ports/tests verifies that every adapter behaves identically,
including the optimistic-concurrency semantics of CompareAndAdvance.
*/
package ports
