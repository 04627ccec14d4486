package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"log/slog"

	"captionminer/internal/cards"
	"captionminer/internal/daemon"
	"captionminer/internal/logging"
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
	if err := rpcServer.RegisterName("Captionminer", srv); err != nil {
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
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String("impact", "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
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
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String("impact", "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually before restarting the daemon"))
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
	return s.logger.With(logging.String("component", "ipc"))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.Lifecycle = status.Lifecycle
	resp.Location = status.Location
	resp.BridgeConnected = status.BridgeConnected
	resp.HasSession = status.HasSession
	resp.DeckID = status.DeckID
	resp.Mode = string(status.Mode)
	if status.Engine != nil {
		resp.Engine = &EngineStatus{
			ID:       status.Engine.ID,
			Caption:  status.Engine.Caption,
			Tokens:   status.Engine.Tokens,
			Selected: status.Engine.Selected,
			Target:   status.Engine.Target,
		}
	}
	resp.QueueTotal = status.Queue.Total
	resp.QueueByDeck = make(map[string]int, len(status.Queue.ByDeck))
	for deck, count := range status.Queue.ByDeck {
		resp.QueueByDeck[deck] = count
	}
	resp.QueueOldest = formatTime(status.Queue.Oldest)
	resp.LastSyncAt = formatTime(status.LastSync.At)
	resp.LastSyncSynced = status.LastSync.Synced
	resp.LastSyncError = status.LastSync.Error
	resp.Segmentation = status.Segmentation
	resp.DictionaryError = status.DictionaryError
	resp.QueueDBPath = status.QueueDBPath
	resp.StoragePath = status.StoragePath
	resp.LockPath = status.LockFilePath
	return nil
}

func (s *service) Submit(req SubmitRequest, resp *SubmitResponse) error {
	var mode cards.Mode
	if req.Mode != "" {
		parsed, err := cards.ParseMode(req.Mode)
		if err != nil {
			return err
		}
		mode = parsed
	}
	s.log().Debug("submit requested", logging.String(logging.FieldMode, string(mode)))
	result, err := s.daemon.Submit(s.ctx, mode)
	if err != nil {
		return err
	}
	resp.Outcome = string(result.Outcome)
	resp.CardID = result.Card.ID
	resp.Target = result.Card.TargetWord
	resp.Mode = string(result.Card.Mode)
	s.log().Info("card submitted via IPC",
		logging.String(logging.FieldEventType, "ipc_submit"),
		logging.String("outcome", resp.Outcome),
		logging.String("card_id", resp.CardID))
	return nil
}

func (s *service) QueueList(_ QueueListRequest, resp *QueueListResponse) error {
	entries, err := s.daemon.ListQueue(s.ctx)
	if err != nil {
		return err
	}
	resp.Items = make([]QueueItem, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		resp.Items = append(resp.Items, QueueItemFromEntry(entry))
	}
	return nil
}

func (s *service) QueueSync(_ QueueSyncRequest, resp *QueueSyncResponse) error {
	s.log().Debug("queue sync requested")
	result, err := s.daemon.SyncQueue(s.ctx)
	resp.Synced = result.Synced
	resp.Remaining = result.Remaining
	resp.Created = result.Created
	if err != nil {
		// Partial progress is still reported; the failing entry stays queued.
		resp.Error = err.Error()
	}
	s.log().Info("queue synced via IPC",
		logging.String(logging.FieldEventType, "ipc_queue_sync"),
		logging.Int("synced", result.Synced),
		logging.Int("remaining", result.Remaining))
	return nil
}

func (s *service) QueueClear(_ QueueClearRequest, resp *QueueClearResponse) error {
	s.log().Debug("queue clear requested")
	removed, err := s.daemon.ClearQueue(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("queue cleared",
		logging.String(logging.FieldEventType, "queue_clear"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	events, next := s.daemon.LogTail(req.Since, req.Limit)
	resp.Events = events
	resp.Next = next
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
