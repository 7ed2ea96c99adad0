package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"fusbsync/assets"
	"fusbsync/internal/app"
	"fusbsync/internal/buildinfo"
	"fusbsync/internal/mount"
)

// Minimal JSON-RPC 2.0 handler standing in for the tray menu:
// - initialize
// - drives/list
// - settings/get
// - folder/open, settings/open
// - sync/run
// - quit

type ServerOptions struct {
	Syncer  *app.Syncer
	Watcher *mount.Watcher
	// Quit must not block; the watch command passes its cancel func.
	Quit func()
}

type Server struct {
	syncer  *app.Syncer
	watcher *mount.Watcher
	quit    func()
	started time.Time
}

func NewServer(opts ServerOptions) *Server {
	return &Server{syncer: opts.Syncer, watcher: opts.Watcher, quit: opts.Quit, started: time.Now()}
}

// Handler serves /healthz, /icon.png and /rpc.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/icon.png", s.serveIcon)
	mux.Handle("/rpc", s)
	return mux
}

// ListenAndServe serves Handler on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("control endpoint listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type rpcReq struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResp struct {
	JSONRPC string  `json:"jsonrpc"`
	ID      any     `json:"id"`
	Result  any     `json:"result,omitempty"`
	Error   *rpcErr `json:"error,omitempty"`
}

type rpcErr struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	codeParse          = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServer         = -32000
)

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req rpcReq
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, rpcResp{JSONRPC: "2.0", ID: nil, Error: &rpcErr{Code: codeParse, Message: "invalid JSON"}})
		return
	}

	switch req.Method {
	case "initialize":
		writeJSON(w, rpcResp{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{
			"server": map[string]any{
				"name":    "fusb_sync",
				"version": buildinfo.Version,
			},
			"settings": s.syncer.Config().Path(),
			"uptime":   time.Since(s.started).Round(time.Second).String(),
			"time":     time.Now().UTC().Format(time.RFC3339),
		}})

	case "drives/list":
		var drives []mount.Drive
		if s.watcher != nil {
			drives = s.watcher.Known()
		}
		writeJSON(w, rpcResp{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{"drives": drives}})

	case "settings/get":
		settings := map[string]string{}
		for _, kv := range s.syncer.Config().All() {
			settings[kv[0]] = kv[1]
		}
		writeJSON(w, rpcResp{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{
			"path":     s.syncer.Config().Path(),
			"settings": settings,
		}})

	case "folder/open":
		s.reply(w, req.ID, map[string]any{"ok": true}, s.syncer.OpenFolder(r.Context()))

	case "settings/open":
		s.reply(w, req.ID, map[string]any{"ok": true}, s.syncer.OpenSettings(r.Context()))

	case "sync/run":
		var p struct {
			Drive string `json:"drive"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil || p.Drive == "" {
			writeJSON(w, rpcResp{JSONRPC: "2.0", ID: req.ID, Error: &rpcErr{Code: codeInvalidParams, Message: "invalid params: drive is required"}})
			return
		}
		rep, err := s.syncer.SyncDrive(r.Context(), mount.Drive(p.Drive))
		s.reply(w, req.ID, rep, err)

	case "quit":
		if s.quit != nil {
			s.quit()
		}
		writeJSON(w, rpcResp{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{"ok": true}})

	default:
		writeJSON(w, rpcResp{JSONRPC: "2.0", ID: req.ID, Error: &rpcErr{Code: codeMethodNotFound, Message: "method not found"}})
	}
}

func (s *Server) reply(w http.ResponseWriter, id any, result any, err error) {
	if err != nil {
		writeJSON(w, rpcResp{JSONRPC: "2.0", ID: id, Error: &rpcErr{Code: codeServer, Message: err.Error()}})
		return
	}
	writeJSON(w, rpcResp{JSONRPC: "2.0", ID: id, Result: result})
}

// serveIcon prefers the configured icon_path and falls back to the bundled one.
func (s *Server) serveIcon(w http.ResponseWriter, r *http.Request) {
	b, err := os.ReadFile(s.syncer.Config().IconPath())
	if err != nil {
		b = assets.IconPNG()
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(b)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
