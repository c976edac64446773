package powermon

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/TheCacophonyProject/dc-powermon/scpi"
	"github.com/TheCacophonyProject/dc-powermon/stats"
)

// Commands are short, anything longer than this is cut off.
const maxCommandLength = 256

// SampleSource produces one sample of every channel per call.
type SampleSource interface {
	Sample() (stats.Sample, error)
}

type LoopConfig struct {
	ReadTimeout    time.Duration // Time a connected client has to send its command.
	LogRate        time.Duration // How often the averages are logged. 0 disables.
	ReportInterval time.Duration // How often a powerReading event is made. 0 disables.
}

// Loop samples the sensor and serves the control socket. It is the only
// writer of the statistics engine.
type Loop struct {
	source     SampleSource
	engine     *stats.Engine
	dispatcher *scpi.Dispatcher
	console    *Console
	conns      <-chan net.Conn
	requests   <-chan serviceRequest
	conf       LoopConfig

	invalidCommands int
	lastLog         time.Time
	lastReport      time.Time
	now             func() time.Time
	addEvent        eventAdder
}

func NewLoop(
	source SampleSource,
	engine *stats.Engine,
	dispatcher *scpi.Dispatcher,
	console *Console,
	conns <-chan net.Conn,
	requests <-chan serviceRequest,
	conf LoopConfig,
) *Loop {
	now := time.Now()
	return &Loop{
		source:     source,
		engine:     engine,
		dispatcher: dispatcher,
		console:    console,
		conns:      conns,
		requests:   requests,
		conf:       conf,
		lastLog:    now,
		lastReport: now,
		now:        time.Now,
		addEvent:   addEvent,
	}
}

// InvalidCommands returns how many unknown commands have been received.
func (l *Loop) InvalidCommands() int {
	return l.invalidCommands
}

// Run loops until ctx is cancelled, a client asks for the monitor to exit,
// or the sensor can't be read. Only a sensor failure returns an error.
func (l *Loop) Run(ctx context.Context) error {
	l.console.Header()
	for {
		select {
		case <-ctx.Done():
			log.Debug("Stopping loop: ", ctx.Err())
			return nil
		default:
		}

		exit, err := l.step()
		if err != nil {
			return err
		}
		if exit {
			log.Info("Exit requested over control socket")
			return nil
		}
	}
}

func (l *Loop) step() (bool, error) {
	sample, err := l.source.Sample()
	if err != nil {
		return false, err
	}
	l.engine.Update(sample)

	snapshot := l.engine.Snapshot()
	l.console.Render(sample, snapshot)
	l.report(snapshot)

	select {
	case req := <-l.requests:
		l.serveRequest(req)
	default:
	}

	select {
	case conn := <-l.conns:
		return l.serve(conn), nil
	default:
	}
	return false, nil
}

func (l *Loop) report(s stats.Stats) {
	now := l.now()
	if l.conf.LogRate > 0 && now.Sub(l.lastLog) >= l.conf.LogRate {
		log.Infof("Bus: %.2fV, Shunt: %.2fmV, Current: %.2fmA, Power: %.2fmW (average of %d samples)",
			s.Avg(stats.BusVoltage), s.Avg(stats.ShuntVoltage), s.Avg(stats.ShuntCurrent), s.Avg(stats.ShuntPower), s.Samples)
		l.lastLog = now
	}
	if l.conf.ReportInterval > 0 && now.Sub(l.lastReport) >= l.conf.ReportInterval {
		if err := reportReading(l.addEvent, now, s); err != nil {
			log.Error("Error adding power reading event: ", err)
		}
		l.lastReport = now
	}
}

func (l *Loop) serveRequest(req serviceRequest) {
	if req.reset {
		log.Info("Resetting statistics, requested over D-Bus")
		l.engine.Reset()
	}
	req.response <- l.engine.Snapshot()
}

// serve handles one command from conn and closes it. Connection errors are
// logged and dropped. Returns true if the client asked for the monitor to exit.
func (l *Loop) serve(conn net.Conn) bool {
	defer conn.Close()
	remote := conn.RemoteAddr()

	if l.conf.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(l.conf.ReadTimeout)); err != nil {
			log.Debugf("Failed to set read deadline for %s: %v", remote, err)
			return false
		}
	}
	line, err := bufio.NewReader(io.LimitReader(conn, maxCommandLength)).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		log.Warnf("Failed to read command from %s: %v", remote, err)
		return false
	}

	res, err := l.dispatcher.Dispatch(line)
	if err != nil {
		l.invalidCommands++
		log.Warnf("Invalid command from %s (%d so far): %v", remote, l.invalidCommands, err)
		return false
	}
	log.Debugf("Command %q from %s", line, remote)

	if res.HasReply {
		if l.conf.ReadTimeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(l.conf.ReadTimeout)); err != nil {
				log.Debugf("Failed to set write deadline for %s: %v", remote, err)
			}
		}
		if _, err := io.WriteString(conn, res.Reply); err != nil {
			log.Warnf("Failed to write reply to %s: %v", remote, err)
		}
	}
	return res.Exit
}
