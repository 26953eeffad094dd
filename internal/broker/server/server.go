// Package server runs the broker daemon: the Unix socket accept loop,
// the per-connection handshake/read loop, the single dispatcher
// goroutine that owns broker.State, and config hot-reload. internal/broker
// itself stays pure (no sockets, no goroutines) so Dispatch can be
// tested without any of this machinery.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/clippy/internal/broker"
	"github.com/pithecene-io/clippy/internal/broker/sink"
	"github.com/pithecene-io/clippy/internal/ipc/codec"
	"github.com/pithecene-io/clippy/internal/ipc/protocol"
	"github.com/pithecene-io/clippy/internal/logger"
)

// ErrAlreadyRunning is returned by Bind when a live broker already holds
// the socket.
var ErrAlreadyRunning = errors.New("broker: already running")

// Config is the broker's tunable state, reloadable at runtime via the
// config watch loop. New sessions pick up the current values at
// register time; sessions already registered keep the ring depth they
// started with.
type Config struct {
	RingDepth   int `yaml:"ring_depth"`
	MaxTurnSize int `yaml:"max_turn_size"`
}

// request is what a connection's read loop hands the dispatcher
// goroutine: one decoded message plus a channel for its response.
// disconnectType requests carry no reply channel.
type request struct {
	connID  broker.ConnectionID
	message protocol.Message
	reply   chan protocol.Message
}

// disconnectType is an internal-only request type, never seen on the
// wire, that tells the dispatcher loop to drop a connection's state.
const disconnectType = "\x00disconnect"

// Server owns the broker's listener and runs its accept loop, dispatcher
// loop, and config watch loop until Shutdown or a fatal error.
type Server struct {
	socketPath string
	listener   net.Listener

	configMu sync.RWMutex
	config   Config

	requests     chan request
	configReload chan Config

	injectMu      sync.Mutex
	injectTargets map[broker.ConnectionID]chan protocol.Message
}

// ResolveSocketPath locates the broker's Unix socket under
// $XDG_RUNTIME_DIR/clippy/broker.sock.
func ResolveSocketPath() (string, error) {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return "", fmt.Errorf("broker: $XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, "clippy", "broker.sock"), nil
}

// Bind creates the socket directory (mode 0700, re-applied even if the
// directory already existed) and binds the Unix listener at path. On
// AddrInUse it connect-probes the existing socket: a successful connect
// means another broker is live (ErrAlreadyRunning); a failed connect
// means the socket is stale, and it is removed and the bind retried.
func Bind(path string) (net.Listener, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("broker: create socket dir %s: %w", dir, err)
	}
	if err := os.Chmod(dir, 0700); err != nil {
		return nil, fmt.Errorf("broker: chmod socket dir %s: %w", dir, err)
	}

	lis, err := net.Listen("unix", path)
	if err == nil {
		return lis, nil
	}
	if !errors.Is(err, syscall.EADDRINUSE) {
		return nil, fmt.Errorf("broker: bind %s: %w", path, err)
	}

	probe, probeErr := net.Dial("unix", path)
	if probeErr == nil {
		probe.Close()
		return nil, ErrAlreadyRunning
	}

	logger.Info("removing stale broker socket", "path", path)
	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("broker: remove stale socket %s: %w", path, err)
	}
	lis, err = net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("broker: bind %s: %w", path, err)
	}
	return lis, nil
}

// New wraps an already-bound listener. Use Bind to produce one at the
// standard socket path, or pass any net.Listener (e.g. one built over a
// test temp directory).
func New(lis net.Listener, socketPath string, config Config) *Server {
	return &Server{
		socketPath:    socketPath,
		listener:      lis,
		config:        config,
		requests:      make(chan request, 32),
		configReload:  make(chan Config, 1),
		injectTargets: make(map[broker.ConnectionID]chan protocol.Message),
	}
}

// Run drives the accept loop, the single dispatcher goroutine, and (if
// configPath is non-empty) a config file watch loop, until ctx is
// canceled or one of them fails. It always removes the socket file
// before returning.
func (s *Server) Run(ctx context.Context, configPath string) error {
	defer os.Remove(s.socketPath)

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return s.acceptLoop(gctx)
	})

	group.Go(func() error {
		return s.dispatchLoop(gctx)
	})

	if configPath != "" {
		group.Go(func() error {
			return s.watchConfig(gctx, configPath)
		})
	}

	group.Go(func() error {
		<-gctx.Done()
		s.listener.Close()
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// RunUntilSignal is the cobra-level entry point: it builds a context
// canceled by SIGTERM/SIGINT and runs until shutdown.
func RunUntilSignal(lis net.Listener, socketPath, configPath string, config Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	s := New(lis, socketPath, config)
	logger.Info("broker listening", "path", socketPath)
	err := s.Run(ctx, configPath)
	logger.Info("broker stopped")
	return err
}

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("broker: accept: %w", err)
		}
		go s.handleConnection(ctx, conn)
	}
}

// handleConnection runs one connection's entire lifecycle: read frames,
// hand every well-formed request to the dispatcher, and answer with
// either its response or an unsolicited inject, whichever arrives
// first.
//
// The first frame on a connection must be hello. Anything else —
// including a well-formed, well-known request type — closes the
// connection immediately with no reply, since no session state exists
// yet for a request to have legitimately touched. A hello that the
// dispatcher rejects (bad id or version) still gets its hello_ack
// written back, but the connection is then closed rather than kept
// open for further requests.
//
// Unknown-type and malformed-but-decodable frames past the handshake
// are answered locally, without a trip through the dispatcher: there
// is no session state a bogus request could have touched.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	connID := broker.NewConnectionID()
	reader := codec.NewReader(conn)
	injects := make(chan protocol.Message, 8)
	s.registerInjectTarget(connID, injects)
	defer s.cleanupConnection(connID)

	firstFrame := true

	for {
		payload, err := reader.ReadPayload()
		if err != nil {
			return
		}

		msg, envelope, decErr := protocol.Decode(payload)
		if decErr != nil {
			logger.Warn("closing connection on malformed frame", "conn", connID)
			return
		}
		if msg == nil {
			if firstFrame {
				logger.Warn("closing connection on non-hello first frame", "conn", connID)
				return
			}
			if err := codec.WriteMessage(conn, protocol.ErrorResponse(envelope.ID, protocol.ErrUnknownType)); err != nil {
				return
			}
			continue
		}
		if firstFrame && msg.Type != protocol.TypeHello {
			logger.Warn("closing connection on non-hello first frame", "conn", connID, "type", msg.Type)
			return
		}
		firstFrame = false

		reply := make(chan protocol.Message, 1)
		select {
		case s.requests <- request{connID: connID, message: *msg, reply: reply}:
		case <-ctx.Done():
			return
		}

		wrote, closeAfter := s.relayUntilReply(ctx, conn, reply, injects, msg.Type == protocol.TypeHello)
		if !wrote || closeAfter {
			return
		}
	}
}

// relayUntilReply writes every inject that arrives before the pending
// request's reply, then writes the reply itself. Returns wrote=false if
// a write failed or ctx was canceled, meaning the caller should close
// the connection without further ceremony. For a hello request whose
// reply is a hello_ack rejection, closeAfter is true: the rejection has
// already been written, but the connection must still be torn down.
func (s *Server) relayUntilReply(ctx context.Context, conn net.Conn, reply <-chan protocol.Message, injects <-chan protocol.Message, isHello bool) (wrote, closeAfter bool) {
	for {
		select {
		case resp := <-reply:
			if err := codec.WriteMessage(conn, resp); err != nil {
				return false, false
			}
			return true, isHello && resp.Status == protocol.StatusError
		case injectMsg := <-injects:
			if err := codec.WriteMessage(conn, injectMsg); err != nil {
				return false, false
			}
		case <-ctx.Done():
			return false, false
		}
	}
}

func (s *Server) registerInjectTarget(connID broker.ConnectionID, ch chan protocol.Message) {
	s.injectMu.Lock()
	defer s.injectMu.Unlock()
	s.injectTargets[connID] = ch
}

func (s *Server) cleanupConnection(connID broker.ConnectionID) {
	s.injectMu.Lock()
	delete(s.injectTargets, connID)
	s.injectMu.Unlock()

	s.requests <- request{connID: connID, message: protocol.Message{Type: disconnectType}}
}

// dispatchLoop is the broker's single actor: the only goroutine that
// ever touches broker.State, processing one request at a time in the
// order connections submitted them.
func (s *Server) dispatchLoop(ctx context.Context) error {
	cfg := s.currentConfig()
	state := broker.NewState(cfg.RingDepth, cfg.MaxTurnSize)

	for {
		select {
		case req := <-s.requests:
			if req.message.Type == disconnectType {
				state.RemoveConnection(req.connID)
				continue
			}

			result := broker.Dispatch(state, req.connID, req.message)
			if result.Deliver != nil {
				s.performDeliver(req, *result.Deliver)
			} else if req.reply != nil {
				req.reply <- result.Response
			}
			if result.Inject != nil {
				s.dispatchInject(*result.Inject)
			}

		case cfg := <-s.configReload:
			state.UpdateConfig(cfg.RingDepth, cfg.MaxTurnSize)
			logger.Info("dispatcher applied reloaded config", "ring_depth", cfg.RingDepth, "max_turn_size", cfg.MaxTurnSize)

		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Server) dispatchInject(action broker.InjectAction) {
	s.injectMu.Lock()
	target, ok := s.injectTargets[action.TargetConnection]
	s.injectMu.Unlock()
	if !ok {
		logger.Warn("inject target not found", "conn", action.TargetConnection)
		return
	}
	select {
	case target <- action.Message:
	default:
		logger.Warn("inject dropped — target connection busy", "conn", action.TargetConnection)
	}
}

// performDeliver runs sink I/O outside the dispatcher's pure Dispatch
// call and answers the original request with either the optimistic
// success response Dispatch already built, or an error response
// carrying the sink's failure code.
func (s *Server) performDeliver(req request, action broker.DeliverAction) {
	var err error
	switch action.Sink {
	case "clipboard":
		err = sink.DeliverClipboard(action.Content, action.Metadata)
	case "file":
		err = sink.DeliverFile(action.Path, action.Content, action.Metadata)
	}

	resp := action.Response
	if err != nil {
		code := protocol.ErrClipboardFailed
		if action.Sink == "file" {
			code = protocol.ErrFileWriteFailed
		}
		logger.Warn("delivery sink failed", "sink", action.Sink, "error", err)
		resp = protocol.ErrorResponse(action.Response.ID, code)
	}
	if req.reply != nil {
		req.reply <- resp
	}
}

func (s *Server) currentConfig() Config {
	s.configMu.RLock()
	defer s.configMu.RUnlock()
	return s.config
}

// watchConfig reloads RingDepth/MaxTurnSize from configPath whenever it
// changes on disk. Already-registered sessions keep the ring depth they
// were created with — broker.State.UpdateConfig only affects sessions
// registered after the reload.
func (s *Server) watchConfig(ctx context.Context, configPath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("broker: config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		return fmt.Errorf("broker: watch %s: %w", configPath, err)
	}

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(configPath) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			reloaded, err := loadConfig(configPath)
			if err != nil {
				logger.Warn("config reload failed", "path", configPath, "error", err)
				continue
			}
			if reloaded.RingDepth < 1 {
				// ring_depth omitted from the file, or explicitly invalid —
				// either way, keep the depth already in effect rather than
				// risk a zero-capacity ring buffer at the next registration.
				reloaded.RingDepth = s.currentConfig().RingDepth
			}
			s.configMu.Lock()
			s.config = reloaded
			s.configMu.Unlock()
			select {
			case s.configReload <- reloaded:
			case <-ctx.Done():
				return nil
			}
			logger.Info("config reloaded", "ring_depth", reloaded.RingDepth, "max_turn_size", reloaded.MaxTurnSize)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", err)

		case <-ctx.Done():
			return nil
		}
	}
}

// loadConfig reads ring_depth/max_turn_size out of a clippy.yaml file.
func loadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
