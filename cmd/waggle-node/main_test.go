package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/waggle-node/internal/bridge"
	"github.com/sweeney/waggle-node/internal/frame"
	"github.com/sweeney/waggle-node/internal/gpio"
	"github.com/sweeney/waggle-node/internal/link"
	"github.com/sweeney/waggle-node/internal/logic"
	"github.com/sweeney/waggle-node/internal/node"
	"github.com/sweeney/waggle-node/internal/status"
)

type tickKind int

const (
	tickCheck tickKind = iota
	tickCollect
	tickEdge
)

// tick is one event delivered to runLoop with the clock at at. Edge ticks
// are recorded from the test goroutine, standing in for the GPIO handler.
type tick struct {
	kind tickKind
	at   uint32
	lane int
	beam logic.Beam
}

func check(at uint32) tick { return tick{kind: tickCheck, at: at} }
func collect(at uint32) tick { return tick{kind: tickCollect, at: at} }

func edge(at uint32, lane int, beam logic.Beam) tick {
	return tick{kind: tickEdge, at: at, lane: lane, beam: beam}
}

// runRunLoop drives runLoop with the given ticks, then stops it with SIGTERM
// at stopAt.
func runRunLoop(t *testing.T, counter *logic.Counter, cycle *node.Cycle, tracker *status.Tracker, clk *logic.ManualClock, stopAt uint32, ticks ...tick) error {
	t.Helper()
	checkCh := make(chan time.Time)
	collectCh := make(chan time.Time)
	sig := make(chan os.Signal, 1)
	now := func() time.Time { return time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC) }

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(counter, cycle, tracker, now, checkCh, collectCh, sig)
	}()

	for _, tk := range ticks {
		clk.Set(tk.at)
		switch tk.kind {
		case tickCheck:
			checkCh <- time.Time{}
		case tickCollect:
			collectCh <- time.Time{}
		case tickEdge:
			counter.RecordEdge(tk.lane, tk.beam)
		}
	}
	clk.Set(stopAt)
	sig <- syscall.SIGTERM

	return <-errCh
}

// readReadings decodes every frame written to the link.
func readReadings(t *testing.T, wire []byte) []bridge.Reading {
	t.Helper()
	fr := link.NewFrameReader(bytes.NewReader(wire))
	proc := bridge.NewProcessor(nil)

	var out []bridge.Reading
	for {
		raw, err := fr.ReadFrame()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		r, err := proc.Process(raw)
		if err != nil {
			t.Fatalf("process frame: %v", err)
		}
		out = append(out, r)
	}
}

func newNode(laneMask uint8, w io.Writer) (*logic.Counter, *logic.ManualClock, *node.Cycle, *status.Tracker) {
	clk := logic.NewManualClock(0)
	counter := logic.NewCounter(logic.DefaultTiming(), laneMask, clk.Now)
	cycle := node.NewCycle(node.Config{HiveID: 5, Extended: true}, counter, node.NoSensors{}, w)
	tracker := status.NewTracker(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC), status.Config{HiveID: 5, LaneMask: laneMask})
	return counter, clk, cycle, tracker
}

func TestRunLoopCountsAndReports(t *testing.T) {
	var wire bytes.Buffer
	counter, clk, cycle, tracker := newNode(0x03, &wire)

	src := gpio.NewFakeSource(counter, clk, []gpio.ScriptedEdge{
		{Edge: gpio.Edge{Lane: 0, Beam: logic.BeamA}, At: 100},
		{Edge: gpio.Edge{Lane: 0, Beam: logic.BeamB}, At: 120},
		{Edge: gpio.Edge{Lane: 1, Beam: logic.BeamB}, At: 300},
		{Edge: gpio.Edge{Lane: 1, Beam: logic.BeamA}, At: 340},
	})
	if _, err := src.ReplayUntil(1000); err != nil {
		t.Fatalf("replay: %v", err)
	}

	if err := runRunLoop(t, counter, cycle, tracker, clk, 60002, check(1000), collect(60000)); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	readings := readReadings(t, wire.Bytes())
	if len(readings) != 2 {
		t.Fatalf("expected 2 frames (cycle + shutdown flush), got %d", len(readings))
	}

	first := readings[0].Payload
	if first.HiveID != 5 || first.Sequence != 0 {
		t.Errorf("first frame: hive=%d seq=%d", first.HiveID, first.Sequence)
	}
	if first.Traffic.BeesIn != 1 || first.Traffic.BeesOut != 1 {
		t.Errorf("first frame: in=%d out=%d, want 1/1", first.Traffic.BeesIn, first.Traffic.BeesOut)
	}
	if first.Traffic.PeriodMs != 60000 {
		t.Errorf("first frame: period=%d, want 60000", first.Traffic.PeriodMs)
	}
	if !first.Flags.Has(frame.FlagFirstBoot) {
		t.Error("first frame should carry first-boot")
	}

	flush := readings[1].Payload
	if flush.Sequence != 1 {
		t.Errorf("flush frame: seq=%d, want 1", flush.Sequence)
	}
	if flush.Traffic.BeesIn != 0 || flush.Traffic.BeesOut != 0 {
		t.Errorf("flush frame should be empty, got in=%d out=%d", flush.Traffic.BeesIn, flush.Traffic.BeesOut)
	}
	if flush.Traffic.PeriodMs != 2 {
		t.Errorf("flush frame: period=%d, want 2", flush.Traffic.PeriodMs)
	}
	if flush.Flags.Has(frame.FlagFirstBoot) {
		t.Error("flush frame should not carry first-boot")
	}

	snap := tracker.Snapshot()
	if snap.Cycles != 2 || snap.TotalIn != 1 || snap.TotalOut != 1 {
		t.Errorf("tracker: cycles=%d in=%d out=%d", snap.Cycles, snap.TotalIn, snap.TotalOut)
	}
	if snap.Lanes[0] != logic.StateIdle || snap.Lanes[1] != logic.StateIdle {
		t.Errorf("lanes should be idle after check, got %v", snap.Lanes)
	}
	if !snap.LinkOpen {
		t.Error("link should be reported open after successful writes")
	}
}

func TestRunLoopStuckBeam(t *testing.T) {
	var wire bytes.Buffer
	counter, clk, cycle, tracker := newNode(0x01, &wire)

	// Check at 2500: beam held past the stuck threshold.
	err := runRunLoop(t, counter, cycle, tracker, clk, 5002,
		edge(100, 0, logic.BeamA), check(2500), collect(5000))
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	readings := readReadings(t, wire.Bytes())
	if len(readings) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(readings))
	}
	p := readings[0].Payload
	if !p.Flags.Has(frame.FlagCounterStuck) {
		t.Error("expected counter-stuck flag")
	}
	if p.Traffic.StuckMask != 0x01 {
		t.Errorf("stuck mask: got 0x%02X, want 0x01", p.Traffic.StuckMask)
	}
	if readings[1].Payload.Flags.Has(frame.FlagCounterStuck) {
		t.Error("stuck is reported once per latch")
	}
	if p.Traffic.BeesIn != 0 || p.Traffic.BeesOut != 0 {
		t.Errorf("a stuck beam is not a transit, got in=%d out=%d", p.Traffic.BeesIn, p.Traffic.BeesOut)
	}
}

type brokenLink struct{}

func (brokenLink) Write(p []byte) (int, error) { return 0, errors.New("broken pipe") }

func TestRunLoopLinkErrorKeepsRunning(t *testing.T) {
	counter, clk, cycle, tracker := newNode(0x01, brokenLink{})

	err := runRunLoop(t, counter, cycle, tracker, clk, 120002, collect(60000), collect(120000))
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	snap := tracker.Snapshot()
	if snap.Cycles != 3 {
		t.Errorf("expected 3 cycles, got %d", snap.Cycles)
	}
	if snap.WriteErrors != 3 {
		t.Errorf("expected 3 write errors, got %d", snap.WriteErrors)
	}
	if cycle.Sequence() != 3 {
		t.Errorf("sequence should advance past failed writes, got %d", cycle.Sequence())
	}
	if snap.LinkOpen {
		t.Error("link should be reported down after a failed write")
	}
}

func TestRunLoopCheckBetweenEdgesKeepsTransit(t *testing.T) {
	var wire bytes.Buffer
	counter, clk, cycle, tracker := newNode(0x01, &wire)

	// Checks land right after each edge on the shared clock, so neither
	// sees a time older than the edge it follows.
	err := runRunLoop(t, counter, cycle, tracker, clk, 60002,
		edge(10001, 0, logic.BeamA),
		check(10001),
		check(10002),
		edge(10050, 0, logic.BeamB),
		check(10050),
		check(10100),
		collect(60000))
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	readings := readReadings(t, wire.Bytes())
	if len(readings) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(readings))
	}
	p := readings[0].Payload
	if p.Traffic.BeesIn != 1 {
		t.Errorf("expected the transit to count, got in=%d", p.Traffic.BeesIn)
	}
	if p.Traffic.StuckMask != 0 || p.Flags.Has(frame.FlagCounterStuck) {
		t.Errorf("no lane should be stuck, got mask 0x%02X flags 0x%02X", p.Traffic.StuckMask, uint8(p.Flags))
	}
}

func TestRunLoopNilTracker(t *testing.T) {
	var wire bytes.Buffer
	counter, clk, cycle, _ := newNode(0x01, &wire)

	if err := runRunLoop(t, counter, cycle, nil, clk, 30, check(10)); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if len(readReadings(t, wire.Bytes())) != 1 {
		t.Error("expected the shutdown flush frame")
	}
}

func TestToTimingDefaults(t *testing.T) {
	def := logic.DefaultTiming()
	tf := timingFlags{
		debounce:   ms(def.DebounceMs),
		minTransit: ms(def.MinTransitMs),
		maxTransit: ms(def.MaxTransitMs),
		refractory: ms(def.RefractoryMs),
		stuck:      ms(def.StuckMs),
	}

	got, err := tf.toTiming()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != def {
		t.Errorf("got %+v, want %+v", got, def)
	}
}

func TestToTimingRejectsInvertedWindow(t *testing.T) {
	tf := timingFlags{minTransit: 300 * time.Millisecond, maxTransit: 200 * time.Millisecond}
	if _, err := tf.toTiming(); err == nil {
		t.Error("expected error for min-transit > max-transit")
	}
}

func TestToTimingRejectsNegative(t *testing.T) {
	tf := timingFlags{debounce: -time.Millisecond, maxTransit: 200 * time.Millisecond}
	if _, err := tf.toTiming(); err == nil {
		t.Error("expected error for negative debounce")
	}
}

func TestToTimingNamesFirstBadFlag(t *testing.T) {
	tf := timingFlags{
		debounce:   -time.Millisecond,
		maxTransit: 200 * time.Millisecond,
		refractory: -time.Millisecond,
		stuck:      -time.Millisecond,
	}
	for i := 0; i < 20; i++ {
		_, err := tf.toTiming()
		if err == nil || !strings.HasPrefix(err.Error(), "debounce ") {
			t.Fatalf("expected debounce to be reported first, got %v", err)
		}
	}
}

func TestRunRejectsBadOptions(t *testing.T) {
	base := options{hiveID: 1, laneMask: 0x0F, check: time.Millisecond, collect: time.Second}

	tests := []struct {
		name string
		mod  func(*options)
	}{
		{"hive out of range", func(o *options) { o.hiveID = 256 }},
		{"no lanes", func(o *options) { o.laneMask = 0 }},
		{"lane mask too wide", func(o *options) { o.laneMask = 0x1F }},
		{"zero collect", func(o *options) { o.collect = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := base
			tt.mod(&o)
			if err := run(o); err == nil {
				t.Error("expected error")
			}
		})
	}
}
