package easycomm

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/w1xm/spid_controller/rotator"
	"github.com/w1xm/spid_controller/spid"
)

type fakeRotator struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeRotator) record(format string, args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeRotator) Stop() { f.record("Stop") }
func (f *fakeRotator) StopAzimuth() { f.record("StopAzimuth") }
func (f *fakeRotator) StopElevation() { f.record("StopElevation") }
func (f *fakeRotator) SetAzimuthPosition(a float64) { f.record("SetAzimuthPosition(%v)", a) }
func (f *fakeRotator) SetElevationPosition(a float64) { f.record("SetElevationPosition(%v)", a) }
func (f *fakeRotator) Park() { f.record("Park") }

func (f *fakeRotator) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

var testStatus = spid.Status{
	Azimuth:       spid.AxisStatus{Fitted: true, Position: 123, Target: 130, State: "moving"},
	Elevation:     spid.AxisStatus{Fitted: true, Position: 45, Target: 45, State: "idle", Halted: true},
	PositionKnown: true,
}

func TestCommands(t *testing.T) {
	for _, test := range []struct {
		input string
		reply string
		calls []string
	}{
		{"AZ170.5", "", []string{"SetAzimuthPosition(170.5)"}},
		{"AZ1e30", "", []string{"SetAzimuthPosition(1e+30)"}},
		{"el12", "", []string{"SetElevationPosition(12)"}},
		{"SA", "", []string{"StopAzimuth"}},
		{"SE", "", []string{"StopElevation"}},
		{"PK", "", []string{"Park"}},
		{"AZ", "AZ123.0", nil},
		{"EL", "EL45.0", nil},
		{"VE", "VE" + Version, nil},
		{"GS", "GS262", nil},
		{"GE", "GE8", nil},
	} {
		t.Run(test.input, func(t *testing.T) {
			r := &fakeRotator{}
			s := NewServer(r, func() rotator.Status { return testStatus })
			reply, err := s.handle(test.input)
			if err != nil {
				t.Fatalf("handle: %v", err)
			}
			if reply != test.reply {
				t.Errorf("reply %q, want %q", reply, test.reply)
			}
			if diff := cmp.Diff(test.calls, r.Calls()); diff != "" {
				t.Errorf("unexpected calls: got(-)/want(+):\n%s", diff)
			}
		})
	}
}

func TestBadCommands(t *testing.T) {
	r := &fakeRotator{}
	s := NewServer(r, func() rotator.Status { return testStatus })
	for _, input := range []string{"AZabc", "XX", "GS5", "1", "AZNAN", "ELINF", "AZ-INF", "EL1E999"} {
		if _, err := s.handle(input); err == nil {
			t.Errorf("handle(%q) succeeded", input)
		}
	}
	if calls := r.Calls(); len(calls) != 0 {
		t.Errorf("bad commands reached the rotator: %v", calls)
	}
}

func TestErrorRegister(t *testing.T) {
	for _, test := range []struct {
		status spid.Status
		want   uint64
	}{
		{spid.Status{PositionKnown: true}, errNone},
		{spid.Status{}, errHoming},
		{spid.Status{Azimuth: spid.AxisStatus{Halted: true}}, errHoming | errMotor},
	} {
		if got := NewReport(test.status).ErrorRegister; got != test.want {
			t.Errorf("%+v: GE%d, want GE%d", test.status, got, test.want)
		}
	}
}

func TestServe(t *testing.T) {
	r := &fakeRotator{}
	s := NewServer(r, func() rotator.Status { return testStatus })
	host, dev := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ctx, dev) }()

	// One line may carry several commands.
	if _, err := fmt.Fprintf(host, "AZ10.0 EL20.0\nAZ EL\n"); err != nil {
		t.Fatal(err)
	}
	scanner := bufio.NewScanner(host)
	var replies []string
	for len(replies) < 2 && scanner.Scan() {
		replies = append(replies, scanner.Text())
	}
	if diff := cmp.Diff([]string{"AZ123.0", "EL45.0"}, replies); diff != "" {
		t.Errorf("unexpected replies: got(-)/want(+):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"SetAzimuthPosition(10)", "SetElevationPosition(20)"}, r.Calls()); diff != "" {
		t.Errorf("unexpected calls: got(-)/want(+):\n%s", diff)
	}

	cancel()
	if err := <-errc; err != nil {
		t.Errorf("Serve = %v after cancel", err)
	}
}
