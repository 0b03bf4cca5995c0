package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/marcelocantos/pipex/internal/audit"
	"github.com/marcelocantos/pipex/internal/config"
	"github.com/marcelocantos/pipex/internal/ipc"
	"github.com/marcelocantos/pipex/internal/metrics"
	"github.com/marcelocantos/pipex/internal/pipeline"
	"github.com/marcelocantos/pipex/internal/rules"
)

// Server is the persistent daemon process that accepts IPC connections
// and runs chains on behalf of CLI clients.
type Server struct {
	cfg         *config.Config
	rules       *rules.RuleSet
	audit       *audit.Logger // nil disables auditing
	log         zerolog.Logger
	metrics     *metrics.Metrics
	idleTimeout time.Duration

	mu        sync.Mutex
	idleTimer *time.Timer
	active    sync.WaitGroup
}

// New creates a daemon server. auditLog may be nil.
func New(cfg *config.Config, rs *rules.RuleSet, auditLog *audit.Logger, log zerolog.Logger) *Server {
	return &Server{
		cfg:         cfg,
		rules:       rs,
		audit:       auditLog,
		log:         log.With().Str("component", "daemon").Logger(),
		metrics:     metrics.New(),
		idleTimeout: cfg.Daemon.IdleTimeoutDuration(),
	}
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *metrics.Metrics { return s.metrics }

// Run takes the daemon lock, creates a listener in the runtime directory and
// calls Serve. When a metrics address is configured, /metrics is served there
// until Run returns.
func (s *Server) Run(ctx context.Context) error {
	paths, err := ipc.RuntimePaths(s.cfg.Daemon.RuntimeDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(paths.Dir, 0700); err != nil {
		return fmt.Errorf("create runtime dir: %w", err)
	}

	lock, err := acquirePidLock(paths.Pid())
	if err != nil {
		return err
	}
	defer lock.release()

	sockPath := paths.Socket()
	if err := cleanStaleSocket(sockPath); err != nil {
		return err
	}

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer os.Remove(sockPath)

	if err := os.Chmod(sockPath, 0600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	if addr := s.cfg.Daemon.MetricsAddr; addr != "" {
		stop, err := s.serveMetrics(addr)
		if err != nil {
			ln.Close()
			return err
		}
		defer stop()
	}

	s.log.Info().Str("socket", sockPath).Dur("idle_timeout", s.idleTimeout).Msg("listening")
	return s.Serve(ctx, ln)
}

func (s *Server) serveMetrics(addr string) (stop func(), err error) {
	mln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	hs := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := hs.Serve(mln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("metrics server")
		}
	}()
	s.log.Info().Str("addr", mln.Addr().String()).Msg("serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		hs.Shutdown(ctx)
	}, nil
}

// Serve accepts connections on ln until ctx is cancelled or the idle timer
// fires. The listener is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()

	// Idle timer cancels idleCtx when no connections arrive for idleTimeout.
	idleCtx, idleCancel := context.WithCancel(ctx)
	defer idleCancel()

	s.mu.Lock()
	s.idleTimer = time.AfterFunc(s.idleTimeout, idleCancel)
	s.mu.Unlock()

	// Close the listener when the context is done (idle or parent cancel).
	go func() {
		<-idleCtx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			// Check if this is a clean shutdown.
			select {
			case <-idleCtx.Done():
				s.active.Wait()
				s.log.Info().Msg("shutting down")
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}
		s.resetIdle()

		s.active.Add(1)
		go func() {
			defer s.active.Done()
			defer conn.Close()
			defer s.resetIdle()
			s.handleConnection(idleCtx, conn)
		}()
	}
}

func (s *Server) resetIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idleTimer != nil {
		s.idleTimer.Reset(s.idleTimeout)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	tag, payload, err := ipc.ReadFrame(conn)
	if err != nil {
		writeExit(conn, fmt.Sprintf("read request: %v", err))
		return
	}
	if tag != ipc.TagRequest {
		writeExit(conn, fmt.Sprintf("expected request frame (0x%02x), got 0x%02x", ipc.TagRequest, tag))
		return
	}

	var req ipc.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		writeExit(conn, fmt.Sprintf("unmarshal request: %v", err))
		return
	}

	// The chain reads a real pipe, so a first command that never reads
	// stdin does not hold up Wait.
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		writeExit(conn, fmt.Sprintf("stdin pipe: %v", err))
		return
	}
	defer stdinW.Close()

	// Stdout and stderr frame writers share a mutex on the connection
	// to prevent interleaved frame bytes from concurrent goroutines.
	var connMu sync.Mutex
	stdoutW := newFrameWriter(conn, &connMu, ipc.TagStdoutData)
	stderrW := newFrameWriter(conn, &connMu, ipc.TagStderrData)

	opts := []pipeline.Option{
		pipeline.WithStdin(stdinR),
		pipeline.WithStdout(stdoutW),
		pipeline.WithStderr(stderrW),
		pipeline.WithDir(req.Cwd),
		pipeline.WithLogger(s.log),
	}
	if len(req.Env) > 0 {
		opts = append(opts, pipeline.WithEnv(ipc.Environ(req.Env)))
	}
	if s.rules != nil {
		opts = append(opts, pipeline.WithGuard(s.rules.Guard(req.Retry)))
	}

	done := s.metrics.Begin()
	defer done()
	start := time.Now()

	res, err := s.run(ctx, conn, req.Commands, stdinR, stdinW, opts)
	elapsed := time.Since(start)
	s.metrics.Observe(len(req.Commands), res, err, elapsed)
	s.record(req, res, err, elapsed)

	connMu.Lock()
	defer connMu.Unlock()
	ipc.WriteJSON(conn, ipc.TagExit, ipc.NewExitResult(res, err))
}

// run starts the chain, relays client frames into it and waits for it.
func (s *Server) run(ctx context.Context, conn net.Conn, cmds []pipeline.Command, stdinR, stdinW *os.File, opts []pipeline.Option) (*pipeline.ChainResult, error) {
	running, err := pipeline.New(opts...).Start(ctx, cmds)
	// The children hold their own copies of the read end.
	stdinR.Close()
	if err != nil {
		s.log.Debug().Err(err).Str("chain", pipeline.Describe(cmds)).Msg("not started")
		return nil, err
	}
	s.log.Debug().Ints("pids", running.Pids()).Str("chain", pipeline.Describe(cmds)).Msg("started")

	// Demux goroutine: reads stdin data, stdin EOF, and signal frames. It
	// ends when the client hangs up, which happens after the exit frame.
	go func() {
		stdinOpen := true
		for {
			t, p, err := ipc.ReadFrame(conn)
			if err != nil {
				stdinW.Close()
				return
			}
			switch t {
			case ipc.TagStdinData:
				if stdinOpen {
					if _, err := stdinW.Write(p); err != nil {
						// Nobody reads stdin any more; drain the rest.
						stdinOpen = false
						stdinW.Close()
					}
				}
			case ipc.TagStdinEOF:
				stdinOpen = false
				stdinW.Close()
			case ipc.TagSignal:
				var msg ipc.SignalMsg
				if json.Unmarshal(p, &msg) != nil {
					continue
				}
				sig := signalNamed(msg.Signal)
				if sig == 0 {
					s.log.Warn().Str("signal", msg.Signal).Msg("unknown signal")
					continue
				}
				if err := running.Signal(sig); err != nil {
					s.log.Warn().Err(err).Msg("forwarding signal")
				}
			}
		}
	}()

	return running.Wait()
}

func (s *Server) record(req ipc.Request, res *pipeline.ChainResult, err error, d time.Duration) {
	if s.audit == nil {
		return
	}
	_, aerr := s.audit.Log(audit.Record{
		Commands: req.Commands,
		Result:   res,
		Err:      err,
		Duration: d,
		Cwd:      req.Cwd,
		Origin:   "daemon",
		Retry:    req.Retry,
	})
	if aerr != nil {
		s.log.Warn().Err(aerr).Msg("audit")
	}
}

// signalNamed maps "INT" or "SIGINT" to the signal; 0 if unknown.
func signalNamed(name string) syscall.Signal {
	if sig := unix.SignalNum(name); sig != 0 {
		return sig
	}
	return unix.SignalNum("SIG" + name)
}

func writeExit(conn net.Conn, msg string) {
	ipc.WriteJSON(conn, ipc.TagExit, ipc.ExitResult{Code: ipc.ExitCallFailed, Error: msg})
}
