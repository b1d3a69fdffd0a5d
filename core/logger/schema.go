package logger

import "strings"

// Level names as they appear in the level field.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

func levelName(level string) string {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug
	case "", "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	}
	return strings.ToUpper(level)
}

// Status values are lowercased; these aliases fold into one spelling.
var statusAliases = map[string]string{
	"failed":   "fail",
	"failure":  "fail",
	"canceled": "cancelled",
	"success":  "ok",
}

func statusName(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	if alias, ok := statusAliases[status]; ok {
		return alias
	}
	return status
}

// defaultKeyOrder puts correlation fields first and the payment fields
// operators grep for next. Unlisted keys follow alphabetically.
var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"update_id",
	"user_id",
	"chat_id",
	"handler",
	"cb_key",
	"op",
	"action",
	"duration_ms",
	"deposit_id",
	"withdrawal_id",
	"reference",
	"amount",
	"balance",
	"from_status",
	"to_status",
	"reminder",
	"pending",
	"messages",
	"kb",
	"mode",
	"listen",
	"host",
	"port",
	"db",
	"err",
	"err_code",
	"err_kind",
	"attempts",
}

func orderIndex(order []string) map[string]int {
	idx := make(map[string]int, len(order))
	for i, k := range order {
		if _, dup := idx[k]; !dup {
			idx[k] = i
		}
	}
	return idx
}
