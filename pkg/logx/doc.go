// Package logx configures slotbot's structured logging.
//
// Logger is a small wrapper on top of zerolog that keeps:
//   - console output readable (short timestamp + short caller)
//   - file output JSON-structured
//   - an optional ops-chat sink (min-level + rate limiting) for operators
package logx
