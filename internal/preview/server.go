// Package preview serves the live preview over WebSocket: prepared frames
// are diffed, downscaled, JPEG-encoded at an adaptive quality, and
// broadcast to every connected viewer.
package preview

import (
	"context"
	"encoding/json"
	"image"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lanternops/recap/internal/logging"
)

var log = logging.L("preview")

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	clientBuffer = 8
)

// Config holds preview server settings.
type Config struct {
	Addr        string
	Quality     int     // base JPEG quality 1-100
	ScaleFactor float64 // 0.1-1.0
}

// DefaultConfig returns preview defaults.
func DefaultConfig() Config {
	return Config{
		Quality:     60,
		ScaleFactor: 0.5,
	}
}

// StatusFunc supplies the payload for the /status endpoint.
type StatusFunc func() any

// Server broadcasts preview frames to WebSocket viewers. Frames are pushed
// from the capture pipeline via Push; viewers that cannot keep up have
// frames dropped rather than slowing the pipeline.
type Server struct {
	cfg      Config
	status   StatusFunc
	upgrader websocket.Upgrader
	differ   *frameDiffer
	adaptive *adaptiveQuality

	mu       sync.Mutex
	clients  map[*client]struct{}
	listener net.Listener
	srv      *http.Server
	stopOnce sync.Once

	framesSent    uint64
	framesDropped uint64
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewServer creates a preview server. status may be nil.
func NewServer(cfg Config, status StatusFunc) *Server {
	if cfg.Quality == 0 {
		cfg.Quality = DefaultConfig().Quality
	}
	if cfg.ScaleFactor == 0 {
		cfg.ScaleFactor = DefaultConfig().ScaleFactor
	}
	return &Server{
		cfg:    cfg,
		status: status,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			// The preview binds to loopback; any local page may view it.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		differ:   newFrameDiffer(),
		adaptive: newAdaptiveQuality(cfg.Quality),
		clients:  make(map[*client]struct{}),
	}
}

// Start binds the listener and begins serving. Returns the bound address,
// useful when cfg.Addr uses port 0.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return "", err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/status", s.handleStatus)

	s.mu.Lock()
	s.listener = ln
	s.srv = &http.Server{Handler: mux}
	s.mu.Unlock()

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Warn("preview server", "error", err)
		}
	}()

	addr := ln.Addr().String()
	log.Info("preview listening", "addr", addr)
	return addr, nil
}

// Stop closes the listener and disconnects every viewer.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		srv := s.srv
		clients := make([]*client, 0, len(s.clients))
		for c := range s.clients {
			clients = append(clients, c)
		}
		s.clients = make(map[*client]struct{})
		s.mu.Unlock()

		for _, c := range clients {
			c.close()
		}
		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}
	})
}

// ViewerCount returns the number of connected viewers.
func (s *Server) ViewerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Push feeds one prepared frame into the preview pipeline. The image is
// only valid for the duration of the call: everything derived from it is
// copied before Push returns. Safe to call with no viewers connected.
func (s *Server) Push(img *image.RGBA, region image.Rectangle) {
	s.mu.Lock()
	n := len(s.clients)
	s.mu.Unlock()
	if n == 0 {
		return
	}
	if !s.differ.HasChanged(img.Pix) {
		return
	}

	scaled := scaleImage(img, s.cfg.ScaleFactor)
	t0 := time.Now()
	data, err := encodeJPEG(scaled, s.adaptive.Quality())
	if err != nil {
		log.Warn("preview encode", "error", err)
		return
	}
	s.adaptive.RecordFrame(time.Since(t0), len(data))
	s.adaptive.Adjust()

	s.broadcast(data)
}

// RegionChanged resets frame diffing so the first frame of a new region is
// always delivered.
func (s *Server) RegionChanged() {
	s.differ.Reset()
}

func (s *Server) broadcast(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- data:
			s.framesSent++
		default:
			s.framesDropped++
		}
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("preview upgrade", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	log.Info("viewer connected", "remote", conn.RemoteAddr().String(), "viewers", n)

	go c.writePump()
	c.readPump()

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()
	log.Info("viewer disconnected", "remote", conn.RemoteAddr().String())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	total, skipped := s.differ.Stats()
	s.mu.Lock()
	payload := map[string]any{
		"viewers":       len(s.clients),
		"framesSent":    s.framesSent,
		"framesDropped": s.framesDropped,
		"framesSkipped": skipped,
		"framesChecked": total,
		"quality":       s.adaptive.Quality(),
	}
	s.mu.Unlock()
	if s.status != nil {
		payload["session"] = s.status()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn("status encode", "error", err)
	}
}

// readPump discards inbound messages and detects disconnects.
func (c *client) readPump() {
	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump sends frames and pings until the send channel closes or a
// write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}
