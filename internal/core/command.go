package core

import (
	"fmt"
	"strings"
)

// CommandKind identifies which writable control a state-store write
// intent targets.
type CommandKind int

const (
	CmdLockMode CommandKind = iota
	CmdCurfewEnabled
	CmdCurfewReplace
	CmdCloseDelay
	CmdLEDMode
	CmdPetType
	CmdPetAssignment
	CmdPetLocation
)

func (k CommandKind) String() string {
	switch k {
	case CmdLockMode:
		return "lock_mode"
	case CmdCurfewEnabled:
		return "curfew_enabled"
	case CmdCurfewReplace:
		return "curfew_replace"
	case CmdCloseDelay:
		return "close_delay"
	case CmdLEDMode:
		return "led_mode"
	case CmdPetType:
		return "pet_type"
	case CmdPetAssignment:
		return "pet_assignment"
	case CmdPetLocation:
		return "pet_location"
	default:
		return "unknown"
	}
}

// Command is a parsed write intent. Device and Pet hold sanitized names
// taken from the path; resolution against the current snapshot happens
// in the dispatcher.
type Command struct {
	Kind   CommandKind
	Path   []string
	Device string
	Pet    string
}

// ParseCommand classifies a write-intent path by its trailing segments.
// Paths are matched from the end so the depth of the household/hub
// prefix does not matter. A path whose leaf is recognized but whose
// surrounding segments fit no single shape is rejected rather than
// guessed at.
func ParseCommand(path []string) (Command, error) {
	n := len(path)
	seg := func(i int) string {
		if i < 0 || i >= n {
			return ""
		}
		return path[i]
	}
	leaf := seg(n - 1)
	joined := strings.Join(path, "/")

	switch leaf {
	case "lockmode", "curfew_enabled", "current_curfew", "close_delay", "led_mode":
		if seg(n-2) != "control" || n < 3 {
			return Command{}, fmt.Errorf("unrecognized control path %q", joined)
		}
		cmd := Command{Path: path, Device: seg(n - 3)}
		switch leaf {
		case "lockmode":
			cmd.Kind = CmdLockMode
		case "curfew_enabled":
			cmd.Kind = CmdCurfewEnabled
		case "current_curfew":
			cmd.Kind = CmdCurfewReplace
		case "close_delay":
			cmd.Kind = CmdCloseDelay
		case "led_mode":
			cmd.Kind = CmdLEDMode
		}
		return cmd, nil

	case "type", "assigned":
		if seg(n-3) != "pets" || seg(n-4) != "control" || n < 5 {
			return Command{}, fmt.Errorf("unrecognized pet control path %q", joined)
		}
		cmd := Command{Path: path, Pet: seg(n - 2), Device: seg(n - 5)}
		if leaf == "type" {
			cmd.Kind = CmdPetType
		} else {
			cmd.Kind = CmdPetAssignment
		}
		return cmd, nil

	case "inside":
		if seg(n-3) != "pets" || n < 3 {
			return Command{}, fmt.Errorf("unrecognized pet path %q", joined)
		}
		if seg(n-4) == "control" {
			return Command{}, fmt.Errorf("ambiguous pet path %q", joined)
		}
		return Command{Kind: CmdPetLocation, Path: path, Pet: seg(n - 2)}, nil
	}

	return Command{}, fmt.Errorf("path %q is not writable", joined)
}
