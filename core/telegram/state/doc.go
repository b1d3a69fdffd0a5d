// Package state stores per-user conversation sessions for Telegram bots.
// Sessions carry the current FSM step plus string scratch data, and can live
// in process memory or in Redis.
package state
