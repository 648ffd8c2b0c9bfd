package tui

import (
	"fmt"
	"strings"
)

// Command is a parsed ":" line.
type Command struct {
	Name string
	Args string
}

var commandAliases = map[string]string{
	"o":         "open",
	"room":      "open",
	"r":         "rooms",
	"ls":        "rooms",
	"f":         "file",
	"send-file": "file",
	"s":         "search",
	"sync":      "sync",
	"refresh":   "sync",
	"qr":        "qr",
	"h":         "help",
	"q":         "quit",
	"q!":        "quit",
	"exit":      "quit",
}

var argRequired = map[string]bool{
	"open":   true,
	"file":   true,
	"search": true,
}

var knownCommands = map[string]bool{
	"open": true, "rooms": true, "file": true, "search": true,
	"sync": true, "qr": true, "help": true, "quit": true,
}

// ParseCommand parses a command line without the leading ':'. Aliases are
// resolved to their full names.
func ParseCommand(input string) (Command, error) {
	name, args, _ := strings.Cut(strings.TrimSpace(input), " ")
	name = strings.ToLower(name)
	if full, ok := commandAliases[name]; ok {
		name = full
	}
	cmd := Command{Name: name, Args: strings.TrimSpace(args)}

	switch {
	case name == "":
		return cmd, fmt.Errorf("empty command")
	case !knownCommands[name]:
		return cmd, fmt.Errorf("unknown command %q", name)
	case argRequired[name] && cmd.Args == "":
		return cmd, fmt.Errorf(":%s needs an argument", name)
	}
	return cmd, nil
}
