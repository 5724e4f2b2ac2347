// Package console reads operator commands line by line and parses them
// into typed commands.
//
// Grammar (keywords are case-insensitive):
//
//	Connect
//	Disconnect
//	Reset
//	Reset Wifi
//	Config Wifi <ssid> [<pass>]
//	Config Cap <n>        (also: Config <n>)
//	Config Url <url>
//	Verbose on|off
//	Show Config
//
// Arguments containing spaces may be double-quoted.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Kind identifies a command.
type Kind int

const (
	CmdConnect Kind = iota + 1
	CmdDisconnect
	CmdReset
	CmdResetWiFi
	CmdConfigWiFi
	CmdConfigCap
	CmdConfigURL
	CmdVerbose
	CmdShowConfig
)

func (k Kind) String() string {
	switch k {
	case CmdConnect:
		return "Connect"
	case CmdDisconnect:
		return "Disconnect"
	case CmdReset:
		return "Reset"
	case CmdResetWiFi:
		return "Reset Wifi"
	case CmdConfigWiFi:
		return "Config Wifi"
	case CmdConfigCap:
		return "Config Cap"
	case CmdConfigURL:
		return "Config Url"
	case CmdVerbose:
		return "Verbose"
	case CmdShowConfig:
		return "Show Config"
	}
	return "unknown"
}

// Command is one parsed operator command. Only the fields of its Kind are set.
type Command struct {
	Kind Kind
	Raw  string

	SSID string
	Pass string
	Cap  int
	URL  string
	On   bool
}

// ErrInvalidCommand is returned for lines that match no command.
var ErrInvalidCommand = errors.New("invalid command")

// Parse parses one command line.
func Parse(line string) (Command, error) {
	raw := strings.TrimSpace(line)
	args, err := split(raw)
	if err != nil {
		return Command{}, err
	}
	if len(args) == 0 {
		return Command{}, fmt.Errorf("%w: empty line", ErrInvalidCommand)
	}

	cmd := Command{Raw: raw}
	head := strings.ToLower(args[0])
	rest := args[1:]

	switch head {
	case "connect":
		cmd.Kind = CmdConnect
		return cmd, noArgs(cmd, rest)
	case "disconnect":
		cmd.Kind = CmdDisconnect
		return cmd, noArgs(cmd, rest)
	case "reset":
		if len(rest) == 0 {
			cmd.Kind = CmdReset
			return cmd, nil
		}
		if strings.EqualFold(rest[0], "wifi") {
			cmd.Kind = CmdResetWiFi
			return cmd, noArgs(cmd, rest[1:])
		}
	case "show":
		if len(rest) == 1 && strings.EqualFold(rest[0], "config") {
			cmd.Kind = CmdShowConfig
			return cmd, nil
		}
	case "verbose":
		if len(rest) == 1 {
			switch strings.ToLower(rest[0]) {
			case "on":
				cmd.Kind, cmd.On = CmdVerbose, true
				return cmd, nil
			case "off":
				cmd.Kind = CmdVerbose
				return cmd, nil
			}
		}
		return Command{}, fmt.Errorf("%w: usage: Verbose on|off", ErrInvalidCommand)
	case "config":
		return parseConfig(cmd, rest)
	}

	return Command{}, fmt.Errorf("%w: %q", ErrInvalidCommand, raw)
}

func parseConfig(cmd Command, args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, fmt.Errorf("%w: Config needs a setting", ErrInvalidCommand)
	}

	switch strings.ToLower(args[0]) {
	case "wifi":
		if len(args) < 2 || len(args) > 3 {
			return Command{}, fmt.Errorf("%w: usage: Config Wifi <ssid> [<pass>]", ErrInvalidCommand)
		}
		cmd.Kind, cmd.SSID = CmdConfigWiFi, args[1]
		if len(args) == 3 {
			cmd.Pass = args[2]
		}
		return cmd, nil
	case "url":
		if len(args) != 2 {
			return Command{}, fmt.Errorf("%w: usage: Config Url <url>", ErrInvalidCommand)
		}
		cmd.Kind, cmd.URL = CmdConfigURL, args[1]
		return cmd, nil
	case "cap":
		args = args[1:]
	}

	if len(args) != 1 {
		return Command{}, fmt.Errorf("%w: usage: Config Cap <n>", ErrInvalidCommand)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return Command{}, fmt.Errorf("%w: capacity %q is not a number", ErrInvalidCommand, args[0])
	}
	cmd.Kind, cmd.Cap = CmdConfigCap, n
	return cmd, nil
}

func noArgs(cmd Command, rest []string) error {
	if len(rest) != 0 {
		return fmt.Errorf("%w: %s takes no arguments", ErrInvalidCommand, cmd.Kind)
	}
	return nil
}

// split breaks a line into whitespace-separated fields, honoring double quotes.
func split(line string) ([]string, error) {
	var (
		out    []string
		cur    strings.Builder
		quoted bool
		inArg  bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			inArg = true
		case !quoted && (r == ' ' || r == '\t'):
			if inArg {
				out = append(out, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if quoted {
		return nil, fmt.Errorf("%w: unterminated quote", ErrInvalidCommand)
	}
	if inArg {
		out = append(out, cur.String())
	}
	return out, nil
}

// Run reads lines from r until EOF or ctx ends and sends every parsed
// command on cmds. Invalid lines are reported on w and skipped.
func Run(ctx context.Context, r io.Reader, w io.Writer, cmds chan<- Command) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		cmd, err := Parse(line)
		if err != nil {
			fmt.Fprintf(w, "Error: %v\n", err)
			continue
		}
		select {
		case cmds <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return sc.Err()
}
