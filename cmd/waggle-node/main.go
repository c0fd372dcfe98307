// Command waggle-node counts bees through the entrance tunnel and sends a
// framed report over the serial link every collection interval.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/waggle-node/internal/gpio"
	"github.com/sweeney/waggle-node/internal/link"
	"github.com/sweeney/waggle-node/internal/logic"
	"github.com/sweeney/waggle-node/internal/node"
	"github.com/sweeney/waggle-node/internal/status"
	"github.com/sweeney/waggle-node/internal/web"
)

type options struct {
	hiveID       uint
	laneMask     uint
	extended     bool
	lowBatteryMV uint
	port         string
	serial       link.Settings
	chip         string
	timing       timingFlags
	check        time.Duration
	collect      time.Duration
	httpAddr     string
}

type timingFlags struct {
	debounce   time.Duration
	minTransit time.Duration
	maxTransit time.Duration
	refractory time.Duration
	stuck      time.Duration
}

func main() {
	def := logic.DefaultTiming()
	var o options

	flag.UintVar(&o.hiveID, "hive", 1, "Hive ID (0-255)")
	flag.UintVar(&o.laneMask, "lanes", 0x0F, "Bitmask of active lanes (bit 0 = lane 0)")
	flag.BoolVar(&o.extended, "extended", true, "Send extended payloads with traffic counts")
	flag.UintVar(&o.lowBatteryMV, "low-battery", node.DefaultLowBatteryMV, "Low battery threshold in mV")
	flag.StringVar(&o.port, "port", "/dev/serial0", "Serial device for the collector link")
	o.serial.RegisterFlags(flag.CommandLine)
	flag.StringVar(&o.chip, "gpio-chip", "gpiochip0", "GPIO character device")
	flag.DurationVar(&o.timing.debounce, "debounce", ms(def.DebounceMs), "Per-beam debounce")
	flag.DurationVar(&o.timing.minTransit, "min-transit", ms(def.MinTransitMs), "Shortest valid transit")
	flag.DurationVar(&o.timing.maxTransit, "max-transit", ms(def.MaxTransitMs), "Longest valid transit")
	flag.DurationVar(&o.timing.refractory, "refractory", ms(def.RefractoryMs), "Lane cooldown after a transit")
	flag.DurationVar(&o.timing.stuck, "stuck", ms(def.StuckMs), "Beam blocked time reported as stuck")
	flag.DurationVar(&o.check, "check", 50*time.Millisecond, "Lane timeout check interval")
	flag.DurationVar(&o.collect, "collect", time.Minute, "Collection interval")
	flag.StringVar(&o.httpAddr, "http", ":80", "HTTP status address (empty to disable)")

	flag.Parse()

	if err := run(o); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func ms(v uint32) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// toTiming converts the duration flags to detector thresholds.
func (t timingFlags) toTiming() (logic.Timing, error) {
	for _, f := range []struct {
		name string
		d    time.Duration
	}{
		{"debounce", t.debounce},
		{"min-transit", t.minTransit},
		{"max-transit", t.maxTransit},
		{"refractory", t.refractory},
		{"stuck", t.stuck},
	} {
		if f.d < 0 || f.d.Milliseconds() > int64(^uint32(0)) {
			return logic.Timing{}, fmt.Errorf("%s %v out of range", f.name, f.d)
		}
	}
	if t.minTransit > t.maxTransit {
		return logic.Timing{}, fmt.Errorf("min-transit %v exceeds max-transit %v", t.minTransit, t.maxTransit)
	}
	return logic.Timing{
		DebounceMs:   uint32(t.debounce.Milliseconds()),
		MinTransitMs: uint32(t.minTransit.Milliseconds()),
		MaxTransitMs: uint32(t.maxTransit.Milliseconds()),
		RefractoryMs: uint32(t.refractory.Milliseconds()),
		StuckMs:      uint32(t.stuck.Milliseconds()),
	}, nil
}

// newClock returns a millisecond clock starting at zero. It wraps after
// about 49 days, which the detector tolerates.
func newClock(start time.Time) logic.Clock {
	return func() uint32 {
		return uint32(time.Since(start).Milliseconds())
	}
}

func run(o options) error {
	if o.hiveID > 0xFF {
		return fmt.Errorf("hive id %d out of range", o.hiveID)
	}
	if o.laneMask == 0 || o.laneMask > 0x0F {
		return fmt.Errorf("lane mask 0x%X must enable lanes 0-%d", o.laneMask, logic.MaxLanes-1)
	}
	if o.check <= 0 || o.collect <= 0 {
		return fmt.Errorf("check and collect intervals must be positive")
	}
	timing, err := o.timing.toTiming()
	if err != nil {
		return fmt.Errorf("timing: %w", err)
	}

	port, err := link.Open(o.port, o.serial)
	if err != nil {
		return fmt.Errorf("open link: %w", err)
	}
	defer port.Close()

	startTime := time.Now()
	clock := newClock(startTime)
	counter := logic.NewCounter(timing, uint8(o.laneMask), clock)

	source, err := gpio.NewRealSource(o.chip, gpio.DefaultPins, uint8(o.laneMask), counter)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer source.Close()

	cycle := node.NewCycle(node.Config{
		HiveID:       uint8(o.hiveID),
		Extended:     o.extended,
		LowBatteryMV: uint16(o.lowBatteryMV),
	}, counter, node.NoSensors{}, port)

	tracker := status.NewTracker(startTime, status.Config{
		HiveID:            uint8(o.hiveID),
		LaneMask:          uint8(o.laneMask),
		Extended:          o.extended,
		SerialPort:        o.port,
		CollectIntervalMs: o.collect.Milliseconds(),
		CheckIntervalMs:   o.check.Milliseconds(),
		Timing:            timing,
		HTTPAddr:          o.httpAddr,
	})
	tracker.SetLinkOpen(true)

	if o.httpAddr != "" {
		srv := web.New(o.httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", o.httpAddr)
	}

	log.Printf("started: hive=%d lanes=0x%X port=%s collect=%v timing=%+v",
		o.hiveID, o.laneMask, o.port, o.collect, timing)

	checkTicker := time.NewTicker(o.check)
	defer checkTicker.Stop()
	collectTicker := time.NewTicker(o.collect)
	defer collectTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(counter, cycle, tracker, time.Now, checkTicker.C, collectTicker.C, sigCh)
}

// runLoop drives the lane timeouts and collection cycles until a signal
// arrives. Counts accumulated since the last cycle are flushed on shutdown.
func runLoop(counter *logic.Counter, cycle *node.Cycle, tracker *status.Tracker, now func() time.Time, check, collect <-chan time.Time, sig <-chan os.Signal) error {
	runCycle := func() {
		report, err := cycle.Run()
		if err != nil {
			log.Printf("link: %v", err)
		} else {
			log.Printf("cycle: seq=%d in=%d out=%d period=%dms flags=0x%02X stuck=0x%X",
				report.Sequence, report.Snapshot.BeesIn, report.Snapshot.BeesOut,
				report.Snapshot.PeriodMs, uint8(report.Flags), report.Snapshot.StuckMask)
		}
		if tracker != nil {
			tracker.RecordCycle(now(), report, err)
		}
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, flushing final cycle", s)
			counter.CheckTimeouts()
			runCycle()
			return nil

		case <-check:
			counter.CheckTimeouts()
			if tracker != nil {
				tracker.SetLaneStates(counter.LaneStates())
			}

		case <-collect:
			runCycle()
		}
	}
}
