// Package device talks to a physical motion controller over a serial port
// using plain-text G-code with ok-acknowledgement, the lowest common
// denominator of hobby CNC firmware. It exists for the calibration sweep;
// normal planning never touches hardware.
package device

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
	"go.uber.org/multierr"

	"gplan/common/logger"
	"gplan/planner"
)

const (
	ackWord        = "ok"
	errorWord      = "error"
	defaultAckWait = 10 * time.Second
)

// SerialIssuer implements planner.MotionIssuer over a serial G-code link.
type SerialIssuer struct {
	port    *serial.Port
	reader  *bufio.Reader
	AckWait time.Duration
}

// Open connects to the controller and switches it to relative positioning,
// which is what the sweep's back-and-forth strokes assume.
func Open(name string, baud int) (*SerialIssuer, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: time.Second}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "open serial port %s", name)
	}
	d := &SerialIssuer{
		port:    port,
		reader:  bufio.NewReader(port),
		AckWait: defaultAckWait,
	}
	if err := d.command("G91"); err != nil {
		return nil, multierr.Append(errors.Wrap(err, "switch to relative mode"), port.Close())
	}
	return d, nil
}

func (d *SerialIssuer) command(line string) error {
	logger.Debugf("device: > %s", line)
	if _, err := d.port.Write([]byte(line + "\n")); err != nil {
		return errors.Wrapf(err, "write %q", line)
	}
	return d.awaitAck(line)
}

// awaitAck reads lines until the controller acknowledges. The serial read
// timeout bounds each read; AckWait bounds the whole exchange.
func (d *SerialIssuer) awaitAck(sent string) error {
	deadline := time.Now().Add(d.AckWait)
	for time.Now().Before(deadline) {
		line, err := d.reader.ReadString('\n')
		if err != nil {
			continue // read timeout, keep waiting until the deadline
		}
		reply := strings.TrimSpace(strings.ToLower(line))
		logger.Debugf("device: < %s", reply)
		if strings.HasPrefix(reply, ackWord) {
			return nil
		}
		if strings.HasPrefix(reply, errorWord) {
			return fmt.Errorf("controller rejected %q: %s", sent, reply)
		}
	}
	return fmt.Errorf("no acknowledgement for %q within %s", sent, d.AckWait)
}

// SendMove issues one relative move on a single axis.
func (d *SerialIssuer) SendMove(axis planner.Axis, distance, feed float64) error {
	return d.command(fmt.Sprintf("G1 %s%.3f F%.1f", strings.ToUpper(axis.String()), distance, feed))
}

// WaitForIdle blocks until the controller has finished all queued motion.
func (d *SerialIssuer) WaitForIdle() error {
	return d.command("M400")
}

// Close returns the controller to absolute positioning and releases the
// port; both failures are reported.
func (d *SerialIssuer) Close() error {
	return multierr.Append(d.command("G90"), d.port.Close())
}
