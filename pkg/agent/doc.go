// Package agent drives the trading loop: request a command from the model,
// validate it, dispatch it, record the outcome, pace, repeat.
//
// Invariants:
//   - Cycles run strictly one after another on the caller's goroutine.
//   - Every cycle appends exactly one assistant turn and one user turn, so
//     history after the seed alternates assistant/user. A failed cycle records
//     the raw model output (or ">(no command)") and an "ERROR: <message>" turn.
//   - Cycle-scoped failures never stop the loop; only cancellation and history
//     recording failures do.
//   - The controller never truncates history. Once the serialized size passes
//     the configured budget, the cycle's user turn carries a notice asking the
//     model to call clearTerminal.
//
// Usage:
//
//	ctrl, _ := agent.New(agent.Config{...})
//	summary, err := ctrl.Run(ctx)
package agent
