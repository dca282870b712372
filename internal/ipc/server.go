package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"

	"log/slog"

	"caddis/internal/api"
	"caddis/internal/daemon"
	"caddis/internal/jobs"
	"caddis/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Caddis", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return logging.NewComponentLogger(s.logger, "ipc")
}

func (s *service) Ping(_ PingRequest, resp *PingResponse) error {
	resp.PID = os.Getpid()
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.Status = s.daemon.Status(s.ctx)
	return nil
}

func (s *service) ListJobs(req ListJobsRequest, resp *ListJobsResponse) error {
	states := make([]jobs.State, 0, len(req.States))
	for _, value := range req.States {
		parsed, ok := jobs.ParseState(value)
		if !ok {
			return fmt.Errorf("unknown job state %q", value)
		}
		states = append(states, parsed)
	}
	records, err := s.daemon.ListJobs(s.ctx, states)
	if err != nil {
		return err
	}
	resp.Jobs = api.FromRecords(records)
	return nil
}

func (s *service) DescribeJob(req DescribeJobRequest, resp *DescribeJobResponse) error {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return errors.New("job id is required")
	}
	rec, err := s.daemon.GetJob(s.ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("job %s not found", id)
	}
	resp.Job = api.FromRecord(rec)
	return nil
}

func (s *service) ClearFinished(_ ClearFinishedRequest, resp *ClearFinishedResponse) error {
	s.log().Debug("clear finished requested")
	removed, err := s.daemon.ClearFinished(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("finished jobs cleared",
		logging.String(logging.FieldEventType, "jobs_clear"),
		logging.Int64("removed_count", removed))
	return nil
}
