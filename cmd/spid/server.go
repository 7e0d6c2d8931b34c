package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/w1xm/spid_controller/rotator"
	"github.com/w1xm/spid_controller/spid"
)

// Server is the display surface: a JSON status endpoint and a websocket
// that streams every status change and accepts commands.
type Server struct {
	r rotator.Rotator

	statusMu   sync.RWMutex
	statusCond *sync.Cond
	status     spid.Status
	// seq counts status updates so waiters can tell a new one arrived.
	seq uint64
}

func NewServer(r rotator.Rotator) *Server {
	s := &Server{r: r}
	s.statusCond = sync.NewCond(s.statusMu.RLocker())
	return s
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/api/status", http.HandlerFunc(s.StatusHandler)).Methods("GET")
	r.Handle("/api/ws", http.HandlerFunc(s.StatusSocketHandler))
	r.PathPrefix("/debug").Handler(http.DefaultServeMux)
	return r
}

func (s *Server) Status() rotator.Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(status)
	if err != nil {
		log.Print(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write(data)
}

type Command struct {
	Command  string  `json:"command"`
	Position float64 `json:"position"`
}

func (s *Server) handleCommand(msg Command) {
	switch msg.Command {
	case "set_azimuth_position":
		s.r.SetAzimuthPosition(msg.Position)
	case "set_elevation_position":
		s.r.SetElevationPosition(msg.Position)
	case "stop":
		s.r.Stop()
	case "stop_azimuth":
		s.r.StopAzimuth()
	case "stop_elevation":
		s.r.StopElevation()
	case "park":
		s.r.Park()
	default:
		log.Printf("unknown command %q", msg.Command)
	}
}

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	defer conn.Close()

	// Read and process incoming messages
	go func() {
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				cancel()
				s.wake()
				return
			}
			s.handleCommand(msg)
		}
	}()

	var seen uint64
	for {
		s.statusMu.RLock()
		for s.seq == seen && ctx.Err() == nil {
			s.statusCond.Wait()
		}
		status := s.status
		seen = s.seq
		s.statusMu.RUnlock()
		if ctx.Err() != nil {
			return
		}
		if err := conn.WriteJSON(status); err != nil {
			log.Print(err)
			return
		}
	}
}

// wake releases every socket waiting for a status change.
func (s *Server) wake() {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.statusCond.Broadcast()
}

func (s *Server) statusCallback(status spid.Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status = status
	s.seq++
	s.statusCond.Broadcast()
}
