package session

import "strings"

// Kind classifies one line of user input.
type Kind int

const (
	Prompt Kind = iota
	Help
	Exit
	Stats
	Reset
	Reload
)

func (k Kind) String() string {
	switch k {
	case Help:
		return "help"
	case Exit:
		return "exit"
	case Stats:
		return "stats"
	case Reset:
		return "reset"
	case Reload:
		return "reload"
	default:
		return "prompt"
	}
}

// Command is a parsed input line. Arg holds the prompt text for Prompt and the
// optional model identifier for Reload.
type Command struct {
	Kind Kind
	Arg  string
}

// commands are matched in this order.
var commands = []struct {
	literal string
	kind    Kind
}{
	{"/reset", Reset},
	{"/reload", Reload},
	{"/exit", Exit},
	{"/stats", Stats},
	{"/help", Help},
}

// ParseCommand classifies line. A command literal must be followed by the end
// of the line or whitespace, so "/exitnow" is a prompt. Anything that is not a
// command is a prompt carrying the line verbatim.
func ParseCommand(line string) Command {
	for _, c := range commands {
		rest, ok := cutCommand(line, c.literal)
		if !ok {
			continue
		}
		cmd := Command{Kind: c.kind}
		if c.kind == Reload {
			if fields := strings.Fields(rest); len(fields) > 0 {
				cmd.Arg = fields[0]
			}
		}
		return cmd
	}
	return Command{Kind: Prompt, Arg: line}
}

func cutCommand(line, literal string) (string, bool) {
	rest, ok := strings.CutPrefix(line, literal)
	if !ok {
		return "", false
	}
	if rest != "" && !isSpace(rest[0]) {
		return "", false
	}
	return rest, true
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
