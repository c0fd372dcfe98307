// Command waggle-bridge reads frames from a sensor node's serial link and
// publishes verified readings to MQTT.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/waggle-node/internal/bridge"
	"github.com/sweeney/waggle-node/internal/link"
	"github.com/sweeney/waggle-node/internal/mqtt"
)

func main() {
	port := flag.String("port", "/dev/ttyUSB0", "Serial device connected to the node")
	var settings link.Settings
	settings.RegisterFlags(flag.CommandLine)
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker address")
	clientID := flag.String("client-id", "waggle-bridge", "MQTT client ID")
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")

	flag.Parse()

	if err := run(*port, settings, *broker, *clientID, *heartbeat); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(port string, settings link.Settings, broker, clientID string, heartbeat time.Duration) error {
	serialPort, err := link.Open(port, settings)
	if err != nil {
		return fmt.Errorf("open link: %w", err)
	}

	publisher, err := mqtt.NewRealPublisher(broker, clientID)
	if err != nil {
		serialPort.Close()
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	startup := mqtt.SystemEvent{
		Timestamp: time.Now(),
		Event:     "STARTUP",
		Retained:  true,
	}
	if err := publisher.PublishSystem(startup); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	frames := make(chan []byte, 16)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go readFrames(link.NewFrameReader(serialPort), frames, readErr, done)

	var hbTick <-chan time.Time
	if heartbeat > 0 {
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		hbTick = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("started: port=%s broker=%s heartbeat=%v", port, broker, heartbeat)

	return runLoop(frames, readErr, serialPort, bridge.NewProcessor(nil), publisher, time.Now, hbTick, sigCh)
}

// readFrames copies frames off the link until it fails or done is closed.
// Oversized frames are line noise and only logged.
func readFrames(fr *link.FrameReader, frames chan<- []byte, readErr chan<- error, done <-chan struct{}) {
	for {
		raw, err := fr.ReadFrame()
		if errors.Is(err, link.ErrFrameTooLong) {
			log.Printf("link: %v, resyncing", err)
			continue
		}
		if err != nil {
			select {
			case readErr <- err:
			case <-done:
			}
			return
		}
		select {
		case frames <- append([]byte(nil), raw...):
		case <-done:
			return
		}
	}
}

// runLoop publishes frames until a signal or link failure. The port is
// closed on return so a reader blocked on it wakes up.
func runLoop(frames <-chan []byte, readErr <-chan error, port io.Closer, proc *bridge.Processor, publisher mqtt.Publisher, now func() time.Time, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	defer port.Close()

	var counts mqtt.FrameCounts

	shutdown := func(reason string) {
		c := counts
		event := mqtt.SystemEvent{
			Timestamp: now(),
			Event:     "SHUTDOWN",
			Reason:    reason,
			Frames:    &c,
			Retained:  true,
		}
		if err := publisher.PublishSystem(event); err != nil {
			log.Printf("failed to publish shutdown event: %v", err)
		} else {
			log.Printf("published shutdown event")
		}
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			shutdown(signalName)
			return nil

		case err := <-readErr:
			shutdown("LINK_ERROR")
			if errors.Is(err, io.EOF) {
				return errors.New("link closed")
			}
			return fmt.Errorf("read link: %w", err)

		case raw := <-frames:
			counts.Received++
			reading, err := proc.Process(raw)
			if err != nil {
				counts.Rejected++
				log.Printf("bridge: dropped frame (%d bytes): %v", len(raw), err)
				continue
			}

			p := reading.Payload
			log.Printf("reading: hive=%d seq=%d type=%d flags=0x%02X",
				p.HiveID, p.Sequence, p.MsgType, uint8(p.Flags))
			if err := publisher.Publish(reading); err != nil {
				log.Printf("publish error: %v", err)
				continue
			}
			counts.Published++

		case <-heartbeat:
			c := counts
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "HEARTBEAT",
				Frames:    &c,
			}
			connected := true
			if cs, ok := publisher.(mqtt.ConnectionStatus); ok {
				connected = cs.IsConnected()
			}
			log.Printf("heartbeat: received=%d published=%d rejected=%d mqtt_connected=%v",
				c.Received, c.Published, c.Rejected, connected)
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}
