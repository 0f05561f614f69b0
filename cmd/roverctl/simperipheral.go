package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/burahimasree/smartcar-core/internal/motorbridge"
)

// simPeripheral stands in for the physical rover when no UART device
// is attached (the "sim" subcommand, a supplemented feature beyond
// spec.md — see SPEC_FULL.md §3). It speaks the same line protocol a
// real peripheral would: it echoes ACK:<CMD>:OK for every command
// line it receives, without checking the command name, and emits a synthetic DATA: line once a
// second with plausible, slowly drifting sensor readings.
type simPeripheral struct {
	logger *slog.Logger
	rng    *rand.Rand
	last   [3]int
}

func newSimPeripheral(logger *slog.Logger, seed int64) *simPeripheral {
	return &simPeripheral{
		logger: logger.With("component", "sim.peripheral"),
		rng:    rand.New(rand.NewSource(seed)),
		last:   [3]int{80, 80, 80},
	}
}

// openSimPort wires a net.Pipe between the bridge and a goroutine
// running this peripheral's protocol loop. Run(ctx) stops the
// goroutine when ctx is canceled, matching motorbridge.OpenPortFunc's
// contract of returning a Port whose lifetime tracks the supervisor.
func (p *simPeripheral) openSimPort(ctx context.Context) (motorbridge.Port, error) {
	bridgeSide, deviceSide := net.Pipe()
	go p.run(ctx, deviceSide)
	return bridgeSide, nil
}

func (p *simPeripheral) run(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	lines := make(chan string)
	go func() {
		defer close(lines)
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			lines <- strings.TrimSpace(line)
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-lines:
			if !ok {
				return
			}
			p.logger.Debug("sim received command", "line", cmd)
			ack := fmt.Sprintf("ACK:%s:OK\n", cmd)
			if _, err := conn.Write([]byte(ack)); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := conn.Write([]byte(p.nextDataLine())); err != nil {
				return
			}
		}
	}
}

// nextDataLine produces a DATA: line whose distances wander within
// [5,150]cm, occasionally dipping close enough to exercise the
// safety veto (motorbridge.Evaluate) without a real sensor.
func (p *simPeripheral) nextDataLine() string {
	for i := range p.last {
		delta := p.rng.Intn(21) - 10
		v := p.last[i] + delta
		if v < 5 {
			v = 5
		}
		if v > 150 {
			v = 150
		}
		p.last[i] = v
	}

	obstacle := 0
	warning := 0
	min := p.last[0]
	for _, d := range p.last {
		if d < min {
			min = d
		}
	}
	if min <= 10 {
		obstacle = 1
	} else if min <= 20 {
		warning = 1
	}

	f := motorbridge.SensorFrame{
		S1: p.last[0], S2: p.last[1], S3: p.last[2],
		MQ2: 50, Servo: 90, LMotor: 0, RMotor: 0,
		ObstacleRaw: obstacle, WarningRaw: warning,
	}
	return motorbridge.EncodeDataLine(f)
}
