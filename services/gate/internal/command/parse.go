package command

import "strings"

type Kind string

const (
	KindHelp    Kind = "help"
	KindStatus  Kind = "status"
	KindRules   Kind = "rules"
	KindLock    Kind = "lock"
	KindUnlock  Kind = "unlock"
	KindCheck   Kind = "check"
	KindSync    Kind = "sync"
	KindUnknown Kind = "unknown"
)

type Command struct {
	Kind Kind
	Arg  string
}

// Parse recognizes "<prefix> <verb> [arg]". The prefix matches with or
// without a leading / or !, and verbs are case-insensitive. Returns false
// when the text is not addressed to the gate at all.
func Parse(prefix, text string) (Command, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return Command{}, false
	}
	head := strings.TrimLeft(fields[0], "/!")
	if !strings.EqualFold(head, prefix) {
		return Command{}, false
	}
	if len(fields) == 1 {
		return Command{Kind: KindHelp}, true
	}
	cmd := Command{}
	if len(fields) > 2 {
		cmd.Arg = fields[2]
	}
	switch strings.ToLower(fields[1]) {
	case "help":
		cmd.Kind = KindHelp
	case "status":
		cmd.Kind = KindStatus
	case "rules":
		cmd.Kind = KindRules
	case "lock":
		cmd.Kind = KindLock
	case "unlock":
		cmd.Kind = KindUnlock
	case "check":
		cmd.Kind = KindCheck
	case "sync":
		cmd.Kind = KindSync
	default:
		cmd.Kind = KindUnknown
	}
	return cmd, true
}
