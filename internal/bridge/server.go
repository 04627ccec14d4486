package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"captionminer/internal/config"
	"captionminer/internal/host"
	"captionminer/internal/logging"
	"captionminer/internal/overlay"
	"captionminer/internal/services"
)

const (
	writeTimeout   = 5 * time.Second
	maxMessageSize = 64 * 1024
)

// Options configures the bridge endpoint.
type Options struct {
	Listen         string
	Path           string
	AllowedOrigins []string
}

// OptionsFromConfig reads bridge settings from configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		Listen:         cfg.Bridge.Listen,
		Path:           cfg.Bridge.Path,
		AllowedOrigins: cfg.Bridge.AllowedOrigins,
	}
}

type pageState struct {
	location    string
	player      bool
	overlay     bool
	caption     string
	currentTime float64
	video       host.Video
}

type peer struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (p *peer) send(msg Outbound) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return p.conn.WriteJSON(msg)
}

// Server is the WebSocket endpoint and the host.Surface backed by it.
type Server struct {
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	state   pageState
	current *peer

	captions   *host.Broadcaster[struct{}]
	players    *host.Broadcaster[struct{}]
	navigation *host.Broadcaster[string]
	pointer    *host.Broadcaster[host.Pointer]

	httpServer *http.Server
	listener   net.Listener
}

// New builds a bridge server. Call Start to listen, or mount Handler on an
// existing server.
func New(opts Options, logger *slog.Logger) *Server {
	if strings.TrimSpace(opts.Path) == "" {
		opts.Path = "/bridge"
	}
	s := &Server{
		opts:       opts,
		logger:     logging.NewComponentLogger(logger, "bridge"),
		captions:   host.NewBroadcaster[struct{}](8),
		players:    host.NewBroadcaster[struct{}](8),
		navigation: host.NewBroadcaster[string](8),
		pointer:    host.NewBroadcaster[host.Pointer](64),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the HTTP handler serving the bridge path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.opts.Path, s.handleUpgrade)
	return mux
}

// Start listens on the configured address.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.opts.Listen)
	if bind == "" {
		return services.Wrap(services.ErrConfiguration, "bridge", "start", "bridge.listen is empty", nil)
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return services.Wrap(services.ErrUnavailable, "bridge", "listen", fmt.Sprintf("listen on %s", bind), err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("bridge server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("bridge listening",
		logging.String(logging.FieldEventType, "bridge_listening"),
		logging.String("address", listener.Addr().String()),
		logging.String("path", s.opts.Path),
	)
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes the listener and the active page connection.
func (s *Server) Stop() {
	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}
	s.mu.Lock()
	current := s.current
	s.current = nil
	s.mu.Unlock()
	if current != nil {
		_ = current.conn.Close()
	}
}

// Connected reports whether a page is attached to the bridge.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(s.opts.AllowedOrigins, origin)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.WarnWithContext(s.logger, "bridge upgrade rejected", "bridge_rejected",
			logging.Error(err),
			logging.String("origin", r.Header.Get("Origin")),
			logging.String(logging.FieldErrorHint, "add the page origin to bridge.allowed_origins"),
			logging.String(logging.FieldImpact, "page cannot be captured"),
		)
		return
	}
	conn.SetReadLimit(maxMessageSize)
	p := &peer{id: uuid.NewString(), conn: conn}

	s.mu.Lock()
	previous := s.current
	s.current = p
	s.mu.Unlock()
	if previous != nil {
		s.logger.Info("page replaced by newer connection",
			logging.String(logging.FieldEventType, "bridge_replaced"),
			logging.String("previous", previous.id),
		)
		previous.writeMu.Lock()
		_ = previous.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "replaced"),
			time.Now().Add(time.Second))
		previous.writeMu.Unlock()
		_ = previous.conn.Close()
	}

	s.logger.Info("page connected",
		logging.String(logging.FieldEventType, "bridge_connected"),
		logging.String(logging.FieldCorrelationID, p.id),
		logging.String("origin", r.Header.Get("Origin")),
	)
	s.readLoop(p)
}

func (s *Server) readLoop(p *peer) {
	defer s.disconnect(p)
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("bridge read ended", logging.Error(err), logging.String(logging.FieldCorrelationID, p.id))
			}
			return
		}
		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			logging.WarnWithContext(s.logger, "malformed bridge message", "bridge_malformed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "update the in-page script"),
				logging.String(logging.FieldImpact, "message ignored"),
			)
			continue
		}
		if !s.isCurrent(p) {
			return
		}
		s.dispatch(msg)
	}
}

func (s *Server) isCurrent(p *peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current == p
}

func (s *Server) disconnect(p *peer) {
	_ = p.conn.Close()
	s.mu.Lock()
	if s.current != p {
		s.mu.Unlock()
		return
	}
	s.current = nil
	s.state = pageState{}
	s.mu.Unlock()

	s.logger.Info("page disconnected",
		logging.String(logging.FieldEventType, "bridge_disconnected"),
		logging.String(logging.FieldCorrelationID, p.id),
	)
	s.navigation.Publish("")
	s.players.Publish(struct{}{})
}

func (s *Server) dispatch(msg Inbound) {
	switch msg.Type {
	case msgSnapshot:
		s.apply(msg, "")
	case msgMutation:
		s.apply(msg, msg.Target)
	case msgNavigate:
		location := msg.URL
		if location == "" && msg.Location != nil {
			location = *msg.Location
		}
		s.mu.Lock()
		s.state.location = location
		s.mu.Unlock()
		s.navigation.Publish(location)
	case msgActivate, msgHover, msgLeave, msgSubmit:
		if p, ok := msg.pointer(); ok {
			s.pointer.Publish(p)
		}
	default:
		s.logger.Debug("unknown bridge message", logging.String("type", msg.Type))
	}
}

// apply merges a partial snapshot and signals whatever changed. A mutation
// target forces its signal even when the mirrored value is unchanged.
func (s *Server) apply(msg Inbound, target string) {
	s.mu.Lock()
	prev := s.state
	if msg.Location != nil {
		s.state.location = *msg.Location
	}
	if msg.Player != nil {
		s.state.player = *msg.Player
	}
	if msg.Overlay != nil {
		s.state.overlay = *msg.Overlay
	}
	if msg.Caption != nil {
		s.state.caption = *msg.Caption
	}
	if msg.Time != nil {
		s.state.currentTime = *msg.Time
	}
	if msg.Video != nil {
		s.state.video = *msg.Video
	}
	next := s.state
	s.mu.Unlock()

	if next.caption != prev.caption || target == targetCaption {
		s.captions.Publish(struct{}{})
	}
	if next.player != prev.player || next.overlay != prev.overlay || target == targetPlayer {
		s.players.Publish(struct{}{})
	}
	if next.location != prev.location {
		s.navigation.Publish(next.location)
	}
}

func (s *Server) send(operation string, msg Outbound) error {
	s.mu.Lock()
	p := s.current
	s.mu.Unlock()
	if p == nil {
		return services.Wrap(services.ErrUnavailable, "bridge", operation, "no page connected", nil)
	}
	if err := p.send(msg); err != nil {
		return services.Wrap(services.ErrTransient, "bridge", operation, "write to page", err)
	}
	return nil
}

func (s *Server) Location() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.location
}

func (s *Server) PlayerPresent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.player
}

func (s *Server) OverlayAttached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.overlay
}

func (s *Server) CaptionText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.caption
}

func (s *Server) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.currentTime
}

// Video returns the playing video, filling the id and URL from the page
// location when the page did not report them.
func (s *Server) Video() host.Video {
	s.mu.Lock()
	defer s.mu.Unlock()
	video := s.state.video
	if video.URL == "" {
		video.URL = s.state.location
	}
	if video.ID == "" {
		video.ID = host.VideoIDFromURL(video.URL)
	}
	return video
}

func (s *Server) SubscribeCaptions() (<-chan struct{}, func()) { return s.captions.Subscribe() }

func (s *Server) SubscribePlayer() (<-chan struct{}, func()) { return s.players.Subscribe() }

func (s *Server) SubscribeNavigation() (<-chan string, func()) { return s.navigation.Subscribe() }

func (s *Server) SubscribePointer() (<-chan host.Pointer, func()) { return s.pointer.Subscribe() }

// Attach asks the page to inject the overlay. The mirrored overlay flag is
// set optimistically; the page confirms through its next snapshot.
func (s *Server) Attach() error {
	if err := s.send("attach", Outbound{Type: msgAttach}); err != nil {
		return err
	}
	s.mu.Lock()
	s.state.overlay = true
	s.mu.Unlock()
	return nil
}

// Detach removes the overlay. Without a page there is nothing to remove.
func (s *Server) Detach() error {
	s.mu.Lock()
	s.state.overlay = false
	connected := s.current != nil
	s.mu.Unlock()
	if !connected {
		return nil
	}
	return s.send("detach", Outbound{Type: msgDetach})
}

func (s *Server) Render(frame overlay.Frame) error {
	return s.send("render", Outbound{Type: msgRender, Frame: &frame})
}

func (s *Server) ShowTooltip(tooltip overlay.Tooltip) error {
	return s.send("tooltip", Outbound{Type: msgTooltip, Tooltip: &tooltip})
}

func (s *Server) Toast(kind host.ToastKind, message string) error {
	return s.send("toast", Outbound{Type: msgToast, Kind: kind, Message: message})
}

var _ host.Surface = (*Server)(nil)
