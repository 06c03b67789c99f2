// Package dispatch routes validated commands to their collaborators.
//
// Each command variant touches exactly one collaborator:
//
//   - reads and order management go to the exchange client; order
//     management also emits a trade audit event
//   - writeActionPlan, clearActionPlan and writeNotes mutate session state
//   - clearTerminal resets the conversation history in place
//   - callAI makes one model call on a fresh message list, built in
//     isolated or inherit mode, and never recurses
//   - wait suspends the loop up to a configured maximum
//   - notifyOperator sends through the notifier; delivery failures become an
//     error-status result instead of a failed command
//   - doNothing acknowledges with its reason
//
// Results are returned unmodified so exchange-assigned identifiers reach the
// model on the next cycle.
package dispatch
