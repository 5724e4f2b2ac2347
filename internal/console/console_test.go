package console

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"Connect", Command{Kind: CmdConnect}},
		{"  Disconnect  ", Command{Kind: CmdDisconnect}},
		{"Reset", Command{Kind: CmdReset}},
		{"Reset Wifi", Command{Kind: CmdResetWiFi}},
		{"reset wifi", Command{Kind: CmdResetWiFi}},
		{"Config Wifi lab-net hunter2", Command{Kind: CmdConfigWiFi, SSID: "lab-net", Pass: "hunter2"}},
		{"Config Wifi open-net", Command{Kind: CmdConfigWiFi, SSID: "open-net"}},
		{`Config Wifi "Guest Lab" "pass word"`, Command{Kind: CmdConfigWiFi, SSID: "Guest Lab", Pass: "pass word"}},
		{"Config Cap 12", Command{Kind: CmdConfigCap, Cap: 12}},
		{"Config 7", Command{Kind: CmdConfigCap, Cap: 7}},
		{"Config 0", Command{Kind: CmdConfigCap, Cap: 0}},
		{"Config Cap 256", Command{Kind: CmdConfigCap, Cap: 256}},
		{"Config Url http://10.0.0.2:8080/people", Command{Kind: CmdConfigURL, URL: "http://10.0.0.2:8080/people"}},
		{"Verbose on", Command{Kind: CmdVerbose, On: true}},
		{"Verbose OFF", Command{Kind: CmdVerbose}},
		{"Show Config", Command{Kind: CmdShowConfig}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := Parse(tt.line)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.line, err)
			}
			tt.want.Raw = strings.TrimSpace(tt.line)
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	lines := []string{
		"",
		"Open sesame",
		"Connect now",
		"Reset everything",
		"Config",
		"Config Wifi",
		"Config Wifi a b c",
		"Config Cap",
		"Config Cap many",
		"Config Url",
		"Verbose",
		"Verbose maybe",
		"Show",
		`Config Wifi "unterminated`,
	}
	for _, line := range lines {
		if _, err := Parse(line); !errors.Is(err, ErrInvalidCommand) {
			t.Errorf("Parse(%q): expected ErrInvalidCommand, got %v", line, err)
		}
	}
}

func TestKindString(t *testing.T) {
	if CmdResetWiFi.String() != "Reset Wifi" {
		t.Errorf("unexpected name %q", CmdResetWiFi.String())
	}
	if Kind(0).String() != "unknown" {
		t.Errorf("unexpected name for zero kind %q", Kind(0).String())
	}
}

func TestRun(t *testing.T) {
	in := strings.NewReader("Connect\n\nbogus\nConfig Cap 9\nShow Config\n")
	var out bytes.Buffer
	cmds := make(chan Command, 10)

	if err := Run(context.Background(), in, &out, cmds); err != nil {
		t.Fatalf("Run: %v", err)
	}
	close(cmds)

	var kinds []Kind
	for c := range cmds {
		kinds = append(kinds, c.Kind)
	}
	want := []Kind{CmdConnect, CmdConfigCap, CmdShowConfig}
	if len(kinds) != len(want) {
		t.Fatalf("got %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("command %d: got %s, want %s", i, kinds[i], want[i])
		}
	}
	if !strings.Contains(out.String(), "Error: invalid command") {
		t.Errorf("expected error report for bogus line, got %q", out.String())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmds := make(chan Command) // unbuffered, nobody reads
	err := Run(ctx, strings.NewReader("Connect\n"), &bytes.Buffer{}, cmds)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
