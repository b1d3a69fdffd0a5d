// Package operator turns operator text into ledger transitions.
package operator

import "strings"

// Verb names an operator action.
type Verb string

const (
	VerbConfirm       Verb = "confirm"
	VerbDone          Verb = "done"
	VerbProcess       Verb = "process"
	VerbReject        Verb = "reject"
	VerbCancelDeposit Verb = "cancel_deposit"
	VerbPending       Verb = "pending"
)

// Command is a parsed operator instruction.
type Command struct {
	Verb Verb
	Arg  string
}

// bare verbs may be typed without a slash.
var bare = map[string]Verb{
	"confirm": VerbConfirm,
	"done":    VerbDone,
}

var slashed = map[string]Verb{
	"confirm":        VerbConfirm,
	"done":           VerbDone,
	"process":        VerbProcess,
	"reject":         VerbReject,
	"cancel_deposit": VerbCancelDeposit,
	"pending":        VerbPending,
}

// Commands lists the slash forms, e.g. for registering bot handlers.
func Commands() []string {
	return []string{"/confirm", "/done", "/process", "/reject", "/cancel_deposit", "/pending"}
}

// Parse recognizes "CONFIRM <ref>", "DONE <id>" and the slash commands,
// case-insensitively. A "@botname" suffix on slash commands is ignored.
func Parse(text string) (Command, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Command{}, false
	}
	head := strings.ToLower(fields[0])

	var (
		verb Verb
		ok   bool
	)
	if strings.HasPrefix(head, "/") {
		head = strings.TrimPrefix(head, "/")
		if at := strings.IndexByte(head, '@'); at >= 0 {
			head = head[:at]
		}
		verb, ok = slashed[head]
	} else {
		verb, ok = bare[head]
	}
	if !ok {
		return Command{}, false
	}

	cmd := Command{Verb: verb}
	if len(fields) > 1 {
		cmd.Arg = fields[1]
	}
	return cmd, true
}

func (v Verb) usage() string {
	switch v {
	case VerbConfirm:
		return "CONFIRM <reference>"
	case VerbDone:
		return "DONE <withdrawal id>"
	case VerbProcess:
		return "/process <withdrawal id>"
	case VerbReject:
		return "/reject <withdrawal id>"
	case VerbCancelDeposit:
		return "/cancel_deposit <deposit id>"
	}
	return "/" + string(v)
}
