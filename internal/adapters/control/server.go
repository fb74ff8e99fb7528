// Package control is the HTTP+WebSocket mirror of the CLI surface (scan,
// join, leave, stations): gorilla/mux routing, an otelhttp-wrapped
// handler, graceful shutdown, and a gorilla/websocket broadcast feed.
package control

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/net80211/station/internal/adapters/history"
	"github.com/net80211/station/internal/adapters/report"
	"github.com/net80211/station/internal/core/domain"
	"github.com/net80211/station/internal/core/station"
)

// Service is the subset of *station.Station the control surface drives.
type Service interface {
	Scan(req station.ScanRequest) error
	Join(ssid, passphrase string) error
	Leave() error
	Stations() []station.StationInfo
}

// History is the read side of the history store the control surface
// queries; satisfied by *history.Store. Optional.
type History interface {
	RecentSightings(ctx context.Context, limit int) ([]history.BSSSighting, error)
	RecentEvents(ctx context.Context, limit int) ([]history.ConnectionEvent, error)
}

// Server exposes Service over HTTP, plus a WebSocket feed of BSS table
// updates.
type Server struct {
	Addr    string
	Service Service
	History History // nil disables /api/history and /api/report
	Link    string

	ws  *wsHub
	srv *http.Server
}

// NewServer builds a control surface bound to addr.
func NewServer(addr string, svc Service) *Server {
	return &Server{
		Addr:    addr,
		Service: svc,
		ws:      newWSHub(),
	}
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/scan", s.handleScan).Methods(http.MethodPost)
	r.HandleFunc("/api/join", s.handleJoin).Methods(http.MethodPost)
	r.HandleFunc("/api/leave", s.handleLeave).Methods(http.MethodPost)
	r.HandleFunc("/api/stations", s.handleStations).Methods(http.MethodGet)
	r.HandleFunc("/api/history", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/report", s.handleReport).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.ws.handle)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Run starts the server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go s.ws.run(ctx)

	handler := otelhttp.NewHandler(s.routes(), "net80211-control")
	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Println("control surface shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("control surface shutdown error: %v", err)
		}
	}()

	log.Printf("control surface listening on %s", s.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// BroadcastBSS pushes a discovered-BSS event to every connected WebSocket
// client; wired as part of an Observer-chain from the station orchestrator.
func (s *Server) BroadcastBSS(link string, desc domain.BSSDescriptor) {
	s.ws.broadcast(wsMessage{Type: "bss_discovered", Payload: map[string]interface{}{
		"link":    link,
		"ssid":    desc.SSID,
		"channel": desc.Channel,
		"rssi":    desc.RSSI,
	}})
}

type scanRequestBody struct {
	Background bool   `json:"background"`
	Broadcast  bool   `json:"broadcast"`
	SSID       string `json:"ssid"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var body scanRequestBody
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	err := s.Service.Scan(station.ScanRequest{
		Background: body.Background,
		Broadcast:  body.Broadcast,
		SSID:       body.SSID,
	})
	writeResult(w, err)
}

type joinRequestBody struct {
	SSID       string `json:"ssid"`
	Passphrase string `json:"passphrase"`
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var body joinRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err := s.Service.Join(body.SSID, body.Passphrase)
	writeResult(w, err)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.Service.Leave())
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.Service.Stations())
}

const historyQueryLimit = 100

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		http.Error(w, "history store not configured", http.StatusNotFound)
		return
	}
	sightings, err := s.History.RecentSightings(r.Context(), historyQueryLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	events, err := s.History.RecentEvents(r.Context(), historyQueryLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"sightings": sightings,
		"events":    events,
	})
}

// handleReport assembles a report.Summary from the history store and
// streams the rendered PDF back.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		http.Error(w, "history store not configured", http.StatusNotFound)
		return
	}
	sightings, err := s.History.RecentSightings(r.Context(), historyQueryLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	events, err := s.History.RecentEvents(r.Context(), historyQueryLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	pdf, err := report.NewExporter().Export(&report.Summary{
		Link:        s.Link,
		GeneratedAt: time.Now().Format(time.RFC1123),
		Sightings:   sightings,
		Events:      events,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="station-report.pdf"`)
	_, _ = w.Write(pdf)
}

func writeResult(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
