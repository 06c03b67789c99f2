// Package command defines the closed action vocabulary the language model may
// issue, validates candidate commands against per-action JSON schemas and
// turns accepted commands into typed variants.
//
// Invariants:
// - Only names registered in the vocabulary (after alias normalization) are accepted.
// - Parameters are schema-validated before a typed Command is produced.
// - Validation is pure: no I/O and no mutation of the candidate.
//
// Usage:
//
//	reg, _ := command.NewRegistry()
//	raw, _ := command.ParseRaw(map[string]interface{}{"command": "getOrderbook", "parameters": map[string]interface{}{"symbol": "pf_xbtusd"}})
//	cmd, err := reg.Validate(raw)
//	if errors.Is(err, command.ErrMissingParameter) { ... }
//	_ = cmd.(command.GetOrderbook)
package command
