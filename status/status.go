// Package status is a read-only HTTP reporting API: it exposes the set of
// registered nodes and their backend connection state for operators, and
// never influences packet delivery on the CAN or TCP side.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"canbridge/registry"
)

// NodeLister is the subset of the registry's interface the API reports on.
type NodeLister interface {
	Snapshot() []NodeView
}

// NodeView is a read-only projection of one registered session, decoupled
// from the session package so the API can be tested without a live engine.
type NodeView struct {
	Identity     string    `json:"identity"`
	Address      byte      `json:"address"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// ConnectionLister is the subset of the fan-out bridge's interface the API
// reports on.
type ConnectionLister interface {
	Connections() []byte
}

// Server is a small gorilla/mux-routed HTTP server reporting live bridge
// state. It never writes to the CAN bus or the backend connections it
// describes.
type Server struct {
	port int

	nodes       NodeLister
	connections ConnectionLister
	knownLabels map[string]string

	router     *mux.Router
	httpServer *http.Server
	startedAt  time.Time
}

// New constructs a status Server. knownLabels maps a hardware identity
// string (identity.NodeIdentity.String()) to an operator-facing label, from
// the configuration's known-node table.
func New(port int, nodes NodeLister, connections ConnectionLister, knownLabels map[string]string) *Server {
	s := &Server{
		port:        port,
		nodes:       nodes,
		connections: connections,
		knownLabels: knownLabels,
		router:      mux.NewRouter(),
		startedAt:   time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/version", s.handleVersion).Methods("GET")
	api.HandleFunc("/nodes", s.handleListNodes).Methods("GET")
	api.HandleFunc("/nodes/{address}", s.handleGetNode).Methods("GET")
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debugf("status: %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

// Run blocks serving HTTP until ctx is cancelled, then shuts down cleanly.
func (s *Server) Run(ctx context.Context) error {
	s.router.Use(loggingMiddleware)
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		log.Info("status: context done, shutting down HTTP server")
		s.httpServer.Shutdown(context.Background())
	}()

	log.Infof("status: serving on port %d", s.port)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

type versionInfo struct {
	Uptime string `json:"uptime"`
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(versionInfo{Uptime: time.Since(s.startedAt).String()})
}

type nodeReport struct {
	NodeView
	Label     string `json:"label,omitempty"`
	Connected bool   `json:"connected"`
}

func (s *Server) connectedSet() map[byte]bool {
	open := make(map[byte]bool)
	for _, addr := range s.connections.Connections() {
		open[addr] = true
	}
	return open
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	open := s.connectedSet()
	views := s.nodes.Snapshot()
	out := make([]nodeReport, 0, len(views))
	for _, v := range views {
		out = append(out, nodeReport{
			NodeView:  v,
			Label:     s.knownLabels[v.Identity],
			Connected: open[v.Address],
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var addr int
	if _, err := fmt.Sscanf(vars["address"], "%d", &addr); err != nil || addr < 0 || addr > 255 {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}

	open := s.connectedSet()
	for _, v := range s.nodes.Snapshot() {
		if int(v.Address) == addr {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(nodeReport{
				NodeView:  v,
				Label:     s.knownLabels[v.Identity],
				Connected: open[v.Address],
			})
			return
		}
	}
	http.Error(w, "node not found", http.StatusNotFound)
}

// RegistryAdapter wraps a *registry.Registry as a NodeLister, translating
// live sessions into the API's read-only view.
type RegistryAdapter struct {
	Registry *registry.Registry
}

// Snapshot implements NodeLister.
func (a RegistryAdapter) Snapshot() []NodeView {
	sessions := a.Registry.Snapshot()
	out := make([]NodeView, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, NodeView{
			Identity:     sess.Identity().String(),
			Address:      sess.Addr(),
			CreatedAt:    sess.CreatedAt(),
			LastActivity: sess.LastActivity(),
		})
	}
	return out
}
