/*
Package domain contains the core domain models for the tribunal coordination
service.

It defines the dialogue graph (Nodes and Options), the live session state
(SessionInstance), role assignments, and the append-only decision log. This
package is kept pure and free of external dependencies like I/O or
persistence, following Hexagonal Architecture principles.

# Key Entities

  - Graph / Node / Option: the immutable branching dialogue to be played out.
  - SessionInstance: one live run of a Graph (current node, status, variables).
  - RoleAssignment: binding of a user to a role for the duration of a session.
  - DecisionRecord: one append-only audit entry per accepted decision/advance.
  - Condition: tagged eligibility rule attached to an Option.
*/
package domain
