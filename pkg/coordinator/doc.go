/*
Package coordinator enforces the dialogue state machine's legality rules and
computes transitions.

It derives whose turn it is from the current node's owning role, validates
submitted decisions against the node's options and their eligibility
conditions, and advances the session through the store's CompareAndAdvance
primitive. A conflicting advance is retried exactly once against fresh state;
a second conflict surfaces as ErrStaleState for the client to re-poll.
*/
package coordinator
