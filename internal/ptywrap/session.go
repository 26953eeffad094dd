// Package ptywrap implements the "wrap" side of clippy: fork/exec the
// target agent onto a pseudoterminal, relay stdin/stdout between the
// user's real terminal and the child transparently, feed agent output to
// a turn detector, and forward completed turns and inject requests to
// and from the broker over an optional connection.
package ptywrap

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/pithecene-io/clippy/internal/ipc/protocol"
	"github.com/pithecene-io/clippy/internal/logger"
	"github.com/pithecene-io/clippy/internal/turn"
)

const ioChunkSize = 8192

// readResult is one read from stdin or the PTY master, passed to the
// main select loop over a channel.
type readResult struct {
	data []byte
	err  error
}

// Run wraps command in a PTY with turn detection against pattern,
// relays I/O until the child exits, and returns the child's exit code.
// An empty session generates a fresh id via uuid.New.
func Run(pattern, session string, command []string) (int, error) {
	if len(command) == 0 {
		return 0, fmt.Errorf("ptywrap: no command given")
	}

	sessionID := session
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	detector, err := turn.NewDetector(pattern)
	if err != nil {
		return 0, fmt.Errorf("ptywrap: %w", err)
	}

	rows, cols, err := TerminalSize()
	if err != nil {
		// Not attached to a real terminal — fall back to a sane default
		// so the agent still has usable dimensions.
		rows, cols = 24, 80
	}

	child, err := SpawnChild(command, rows, cols)
	if err != nil {
		return 0, fmt.Errorf("ptywrap: spawn: %w", err)
	}
	logger.Info("session started", "session", sessionID, "pid", child.PID(), "command", command)

	guard, err := EnterRawMode()
	if err != nil {
		return 0, fmt.Errorf("ptywrap: raw mode: %w", err)
	}
	defer guard.Close()

	broker, err := ConnectBrokerClient(sessionID, uint32(child.PID()), pattern)
	if err != nil {
		logger.Warn("broker unavailable — running standalone", "error", err)
		broker = nil
	} else {
		logger.Info("connected to broker")
	}

	sigCh := make(chan os.Signal, 8)
	signal.Notify(sigCh,
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT,
		syscall.SIGWINCH, syscall.SIGTSTP, syscall.SIGCONT,
	)
	defer signal.Stop(sigCh)

	stdinCh := make(chan readResult, 1)
	go readLoop(os.Stdin, stdinCh)

	ptyCh := make(chan readResult, 1)
	go readLoop(child.Master(), ptyCh)

	var latestTurn *turn.Turn
	var loopErr error

loop:
	for {
		brokerFrames := brokerFramesChan(broker)
		brokerClosed := brokerClosedChan(broker)

		select {
		case res := <-stdinCh:
			if res.err != nil {
				// stdin EOF — unusual in raw mode, but exit cleanly.
				break loop
			}
			if _, err := child.Master().Write(res.data); err != nil {
				loopErr = err
				break loop
			}
			for _, b := range res.data {
				if b == '\r' || b == '\n' {
					detector.NotifyUserInput()
					break
				}
			}
			go readLoop(os.Stdin, stdinCh)

		case res := <-ptyCh:
			if res.err != nil {
				// PTY EOF — child exited.
				break loop
			}
			if _, err := os.Stdout.Write(res.data); err != nil {
				loopErr = err
				break loop
			}
			events := detector.FeedOutput(res.data)
			var pending []turn.Turn
			for _, ev := range events {
				switch ev.Kind {
				case turn.EventSessionReady:
					logger.Info("session ready — first prompt detected")
				case turn.EventTurnCompleted:
					logger.Debug("turn completed", "len", len(ev.Turn.Content), "interrupted", ev.Turn.Interrupted)
					pending = append(pending, ev.Turn)
				}
			}
			deliverTurns(&broker, &latestTurn, sessionID, uint32(child.PID()), pattern, pending)
			go readLoop(child.Master(), ptyCh)

		case msg, ok := <-brokerFrames:
			if !ok {
				break
			}
			if msg.Type == protocol.TypeInject {
				logger.Debug("inject received", "len", len(msg.Content))
				if _, err := child.Master().Write(msg.Content); err != nil {
					loopErr = err
					break loop
				}
			}

		case <-brokerClosed:
			logger.Warn("broker disconnected")
			broker = nil

		case sig := <-sigCh:
			if handleSignal(sig, child, detector, guard) {
				break loop
			}
		}
	}

	// Flush any unterminated prompt line.
	for _, ev := range detector.FlushLine() {
		if ev.Kind == turn.EventTurnCompleted {
			latestTurn = &ev.Turn
			if broker != nil {
				_ = broker.SendTurn(ev.Turn)
			}
		}
	}

	if broker != nil {
		broker.Deregister()
		broker.Close()
	}

	exitCode := child.Wait()
	guard.Close()

	logger.Info("session ended", "exit_code", exitCode)
	if loopErr != nil {
		logger.Warn("I/O loop error", "error", loopErr)
	}

	return exitCode, nil
}

// readLoop performs one blocking read and reports it on ch. The main
// loop relaunches it after consuming the result, turning a blocking
// Read into a channel the select loop can multiplex alongside signals
// and the broker connection.
func readLoop(r io.Reader, ch chan<- readResult) {
	buf := make([]byte, ioChunkSize)
	n, err := r.Read(buf)
	if n > 0 {
		ch <- readResult{data: buf[:n]}
		return
	}
	ch <- readResult{err: err}
}

// deliverTurns sends newly completed turns to the broker, retaining the
// latest one locally for late registration if the broker is
// unreachable. Mirrors the original's "always update the local
// latest-turn buffer, then attempt delivery or reconnect" sequencing.
func deliverTurns(broker **BrokerClient, latestTurn **turn.Turn, sessionID string, pid uint32, pattern string, pending []turn.Turn) {
	if len(pending) == 0 {
		return
	}
	last := pending[len(pending)-1]
	*latestTurn = &last

	if *broker != nil {
		for _, t := range pending {
			if err := (*broker).SendTurn(t); err != nil {
				logger.Warn("failed to send turn to broker", "error", err)
			}
		}
		return
	}

	// Broker disconnected — attempt late registration and deliver the
	// latest turn on success.
	client, err := ConnectBrokerClient(sessionID, pid, pattern)
	if err != nil {
		return
	}
	if err := client.SendTurn(**latestTurn); err != nil {
		client.Close()
		return
	}
	logger.Info("late registration — connected to broker")
	*broker = client
}

// handleSignal reacts to one forwarded signal. Returns true when the
// main loop should exit.
func handleSignal(sig os.Signal, child *Child, detector *turn.Detector, guard *TerminalGuard) bool {
	switch sig {
	case syscall.SIGINT:
		detector.NotifyInterrupt()
		forwardSignal(child, syscall.SIGINT)
	case syscall.SIGTERM:
		forwardSignal(child, syscall.SIGTERM)
		return true
	case syscall.SIGHUP:
		forwardSignal(child, syscall.SIGHUP)
	case syscall.SIGQUIT:
		forwardSignal(child, syscall.SIGQUIT)
	case syscall.SIGWINCH:
		if rows, cols, err := TerminalSize(); err == nil {
			if err := child.SetSize(rows, cols); err != nil {
				logger.Warn("SIGWINCH handling failed", "error", err)
			}
		}
	case syscall.SIGTSTP:
		forwardSignal(child, syscall.SIGTSTP)
		if err := guard.Suspend(); err != nil {
			logger.Warn("terminal restore before SIGTSTP failed", "error", err)
		}
		_ = syscall.Kill(os.Getpid(), syscall.SIGSTOP)
		// Execution resumes here once SIGCONT arrives.
		if err := guard.Resume(); err != nil {
			logger.Warn("terminal re-raw after resume failed", "error", err)
		}
	case syscall.SIGCONT:
		forwardSignal(child, syscall.SIGCONT)
	}
	return false
}

func forwardSignal(child *Child, sig syscall.Signal) {
	if err := child.Signal(sig); err != nil {
		logger.Warn("signal forward failed", "signal", sig, "error", err)
	}
}

func brokerFramesChan(b *BrokerClient) <-chan protocol.Message {
	if b == nil {
		return nil
	}
	return b.Frames
}

func brokerClosedChan(b *BrokerClient) <-chan struct{} {
	if b == nil {
		return nil
	}
	return b.Closed
}
