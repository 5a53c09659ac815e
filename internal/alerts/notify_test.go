package alerts

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nixlim/zbx-alerting/internal/problem"
)

type recordedRun struct {
	name string
	args []string
}

// fakeRunner answers commands by program name.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []recordedRun
	outputs map[string]string
	errs    map[string]error
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedRun{name: name, args: args})
	return f.outputs[name], f.errs[name]
}

func (f *fakeRunner) called(name string) []recordedRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedRun
	for _, c := range f.calls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

func sampleAlert() Alert {
	return Alert{
		EventID: "42",
		AppName: "Alerting",
		Summary: "High – db-01",
		Body:    "Event #42 [UNACK]\nDisk full",
		Urgency: UrgencyCritical,
		Expire:  5 * time.Second,
		Buttons: []Button{
			{Kind: problem.ActionAcknowledge, Label: "Ack"},
			{Kind: problem.ActionOpen, Label: "Open"},
			{Kind: problem.ActionDismiss, Label: "Dismiss"},
		},
	}
}

func TestNotifySendArgs(t *testing.T) {
	a := sampleAlert()
	a.Icon = "dialog-warning"

	got := notifySendArgs(a)
	want := []string{
		"--wait", "--urgency", "critical",
		"--app-name", "Alerting",
		"--icon", "dialog-warning",
		"--expire-time", "5000",
		"--action", "ack=Ack",
		"--action", "open=Open",
		"--action", "dismiss=Dismiss",
		"High – db-01", "Event #42 [UNACK]\nDisk full",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("notifySendArgs =\n  %q\nwant\n  %q", got, want)
	}
}

func TestNotifySendArgs_Expiry(t *testing.T) {
	tests := []struct {
		name   string
		expire time.Duration
		want   string // "" means flag absent
	}{
		{"never", ExpireNever, "0"},
		{"daemon default", ExpireDefault, ""},
		{"timeout", 1500 * time.Millisecond, "1500"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := sampleAlert()
			a.Expire = tc.expire
			args := notifySendArgs(a)
			got := ""
			for i, arg := range args {
				if arg == "--expire-time" {
					got = args[i+1]
				}
			}
			if got != tc.want {
				t.Errorf("--expire-time = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestKindForKey(t *testing.T) {
	a := sampleAlert()
	tests := []struct {
		key    string
		want   problem.ActionKind
		wantOK bool
	}{
		{"ack", problem.ActionAcknowledge, true},
		{"Open", problem.ActionOpen, true},
		{" dismiss\n", problem.ActionDismiss, true},
		{"unack", 0, false}, // not offered
		{"", 0, false},
	}
	for _, tc := range tests {
		got, ok := kindForKey(a, tc.key)
		if ok != tc.wantOK || (ok && got != tc.want) {
			t.Errorf("kindForKey(%q) = %v, %v; want %v, %v", tc.key, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{"short unchanged", "disk full", 20, "disk full"},
		{"exact length unchanged", "123456789012", 12, "123456789012"},
		{"long truncated", "1234567890123", 12, "123456789..."},
		{"multibyte safe", "ääääää", 5, "ää..."},
		{"tiny max", "abcdef", 2, "ab"},
		{"empty", "", 5, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := truncate(tc.input, tc.max); got != tc.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tc.input, tc.max, got, tc.want)
			}
		})
	}
}

// recordingSink collects submitted actions.
type recordingSink struct {
	mu      sync.Mutex
	actions []problem.Action
}

func (s *recordingSink) Submit(_ context.Context, a problem.Action) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, a)
	return true
}

func (s *recordingSink) got() []problem.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]problem.Action(nil), s.actions...)
}

func newFakeNotifySend(r *fakeRunner, sink ActionSink) *Desktop {
	return newDesktop("notify-send", &notifySend{run: r.run}, sink, nil)
}

func TestDesktop_SubmitsChosenAction(t *testing.T) {
	r := &fakeRunner{outputs: map[string]string{"notify-send": "ack\n"}}
	sink := &recordingSink{}
	d := newFakeNotifySend(r, sink)

	if err := d.Notify(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	d.Wait()

	got := sink.got()
	if len(got) != 1 {
		t.Fatalf("submitted %d actions, want 1", len(got))
	}
	if got[0] != (problem.Action{EventID: "42", Kind: problem.ActionAcknowledge}) {
		t.Errorf("action = %+v", got[0])
	}
	if n := len(r.called("zenity")); n != 0 {
		t.Errorf("zenity called %d times without AskMessage", n)
	}
}

func TestDesktop_AsksForMessage(t *testing.T) {
	r := &fakeRunner{outputs: map[string]string{"notify-send": "ack", "zenity": "  looking into it "}}
	sink := &recordingSink{}
	d := newFakeNotifySend(r, sink)

	a := sampleAlert()
	a.AskMessage = true
	_ = d.Notify(context.Background(), a)
	d.Wait()

	got := sink.got()
	if len(got) != 1 || got[0].Message != "looking into it" {
		t.Fatalf("actions = %+v, want one ack with trimmed message", got)
	}
	calls := r.called("zenity")
	if len(calls) != 1 || !strings.Contains(strings.Join(calls[0].args, " "), "event #42") {
		t.Errorf("zenity calls = %+v", calls)
	}
}

func TestDesktop_PromptFailureStillSubmits(t *testing.T) {
	r := &fakeRunner{
		outputs: map[string]string{"notify-send": "ack"},
		errs:    map[string]error{"zenity": errors.New("exit status 1")},
	}
	sink := &recordingSink{}
	d := newFakeNotifySend(r, sink)

	a := sampleAlert()
	a.AskMessage = true
	_ = d.Notify(context.Background(), a)
	d.Wait()

	got := sink.got()
	if len(got) != 1 || got[0].Kind != problem.ActionAcknowledge || got[0].Message != "" {
		t.Errorf("actions = %+v, want plain ack", got)
	}
}

func TestDesktop_NoPromptForOpen(t *testing.T) {
	r := &fakeRunner{outputs: map[string]string{"notify-send": "open"}}
	sink := &recordingSink{}
	d := newFakeNotifySend(r, sink)

	a := sampleAlert()
	a.AskMessage = true
	_ = d.Notify(context.Background(), a)
	d.Wait()

	if n := len(r.called("zenity")); n != 0 {
		t.Errorf("zenity called %d times for open", n)
	}
	if got := sink.got(); len(got) != 1 || got[0].Kind != problem.ActionOpen {
		t.Errorf("actions = %+v", got)
	}
}

func TestDesktop_ClosedOrFailedSubmitsNothing(t *testing.T) {
	tests := []struct {
		name string
		r    *fakeRunner
	}{
		{"expired", &fakeRunner{outputs: map[string]string{"notify-send": ""}}},
		{"unknown key", &fakeRunner{outputs: map[string]string{"notify-send": "bogus"}}},
		{"command failed", &fakeRunner{errs: map[string]error{"notify-send": errors.New("not found")}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sink := &recordingSink{}
			d := newFakeNotifySend(tc.r, sink)
			if err := d.Notify(context.Background(), sampleAlert()); err != nil {
				t.Fatalf("Notify: %v", err)
			}
			d.Wait()
			if got := sink.got(); len(got) != 0 {
				t.Errorf("actions = %+v, want none", got)
			}
		})
	}
}

func TestDesktop_CancelledContext(t *testing.T) {
	d := newFakeNotifySend(&fakeRunner{}, &recordingSink{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Notify(ctx, sampleAlert()); !errors.Is(err, context.Canceled) {
		t.Errorf("Notify on cancelled ctx = %v, want context.Canceled", err)
	}
}

func TestChanSink(t *testing.T) {
	sink := make(ChanSink, 1)
	if !sink.Submit(context.Background(), problem.Action{EventID: "1"}) {
		t.Fatal("Submit on buffered channel failed")
	}
	if got := <-sink; got.EventID != "1" {
		t.Errorf("received %+v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	unbuffered := make(ChanSink)
	if unbuffered.Submit(ctx, problem.Action{EventID: "2"}) {
		t.Error("Submit with cancelled ctx and no reader reported success")
	}
}

func TestCommandOpener(t *testing.T) {
	r := &fakeRunner{}
	o := &CommandOpener{Program: "xdg-open", run: r.run}
	if err := o.Open(context.Background(), "https://zbx/tr_events.php?eventid=1"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	calls := r.called("xdg-open")
	if len(calls) != 1 || calls[0].args[0] != "https://zbx/tr_events.php?eventid=1" {
		t.Errorf("calls = %+v", calls)
	}
}
