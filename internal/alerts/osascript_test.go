package alerts

import (
	"context"
	"strings"
	"testing"

	"github.com/nixlim/zbx-alerting/internal/problem"
)

func TestEscapeAppleScript(t *testing.T) {
	escaped := escapeAppleScript(`He said "hello" and \n stuff`)
	expected := `He said \"hello\" and \\n stuff`
	if escaped != expected {
		t.Errorf("escapeAppleScript: expected %q, got %q", expected, escaped)
	}
}

func TestDialogScript(t *testing.T) {
	a := sampleAlert()
	a.Body = `Disk "data" full`
	script := dialogScript(a)

	for _, want := range []string{
		`display dialog "Disk \"data\" full"`,
		`with title "Alerting: High – db-01"`,
		`buttons {"Ack", "Open", "Dismiss"}`,
		`default button "Ack"`,
		`giving up after 5`,
	} {
		if !strings.Contains(script, want) {
			t.Errorf("script %q missing %q", script, want)
		}
	}
}

func TestDialogScript_StickyAndButtonCap(t *testing.T) {
	a := sampleAlert()
	a.Expire = ExpireNever
	a.Buttons = append(a.Buttons, Button{Kind: problem.ActionUnacknowledge, Label: "Unack"})

	script := dialogScript(a)
	if strings.Contains(script, "giving up") {
		t.Errorf("sticky dialog should not give up: %q", script)
	}
	if strings.Contains(script, `"Unack"`) {
		t.Errorf("dialog should carry at most %d buttons: %q", maxDialogButtons, script)
	}
}

func TestParseDialogResult(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want dialogResult
	}{
		{"button only", "button returned:Ack, gave up:false", dialogResult{button: "Ack"}},
		{"gave up", "button returned:, gave up:true\n", dialogResult{gaveUp: true}},
		{"text", "button returned:OK, text returned:on it, gave up:false", dialogResult{button: "OK", text: "on it"}},
		{"text with commas", "button returned:OK, text returned:disk full, cleaning up, gave up:false", dialogResult{button: "OK", text: "disk full, cleaning up"}},
		{"text without gave up", "button returned:OK, text returned:a, b\n", dialogResult{button: "OK", text: "a, b"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := parseDialogResult(tc.out); got != tc.want {
				t.Errorf("parseDialogResult(%q) = %+v, want %+v", tc.out, got, tc.want)
			}
		})
	}
}

func TestOSAScript_Present(t *testing.T) {
	tests := []struct {
		name   string
		out    string
		want   problem.ActionKind
		wantOK bool
	}{
		{"ack pressed", "button returned:Ack, gave up:false", problem.ActionAcknowledge, true},
		{"open pressed", "button returned:Open, gave up:false", problem.ActionOpen, true},
		{"timed out", "button returned:, gave up:true", 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := &fakeRunner{outputs: map[string]string{"osascript": tc.out}}
			o := &osascriptDialog{run: r.run}
			got, ok, err := o.present(context.Background(), sampleAlert())
			if err != nil {
				t.Fatalf("present: %v", err)
			}
			if ok != tc.wantOK || (ok && got != tc.want) {
				t.Errorf("present = %v, %v; want %v, %v", got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestOSAScript_AskMessage(t *testing.T) {
	r := &fakeRunner{outputs: map[string]string{"osascript": "button returned:OK, text returned:rebooting"}}
	o := &osascriptDialog{run: r.run}
	msg, err := o.askMessage(context.Background(), sampleAlert(), problem.ActionAcknowledge)
	if err != nil || msg != "rebooting" {
		t.Errorf("askMessage = %q, %v", msg, err)
	}

	r.outputs["osascript"] = "button returned:OK, text returned:disk full, cleaning up"
	msg, err = o.askMessage(context.Background(), sampleAlert(), problem.ActionAcknowledge)
	if err != nil || msg != "disk full, cleaning up" {
		t.Errorf("askMessage with commas = %q, %v", msg, err)
	}

	r.outputs["osascript"] = "button returned:Skip, text returned:ignored"
	msg, _ = o.askMessage(context.Background(), sampleAlert(), problem.ActionAcknowledge)
	if msg != "" {
		t.Errorf("skipped prompt returned %q", msg)
	}
}
