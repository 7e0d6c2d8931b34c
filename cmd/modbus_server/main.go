// Command modbus_server exposes a local Modbus RTU bus over HTTP, so a
// controller elsewhere on the network can drive the relay board through the
// hardware.modbus.url setting.
package main

import (
	"encoding/json"
	"flag"
	"io/ioutil"
	"log"
	"net/http"
	"time"

	"github.com/goburrow/modbus"
	"github.com/gorilla/mux"
	"github.com/w1xm/spid_controller/internal/modbus/modbushttp"
)

var (
	addr       = flag.String("addr", "127.0.0.1:8503", "address to listen on")
	password   = flag.String("password", "", "password to require on remote connections")
	serialPort = flag.String("serial", "", "relay board serial port name")
	baud       = flag.Int("baud", 19200, "relay board baud rate")
	slaveID    = flag.Int("slave_id", 1, "relay board slave id")
)

// transporter sends one framed request and returns the framed reply.
type transporter interface {
	Send(aduRequest []byte) (aduResponse []byte, err error)
}

type Server struct {
	handler  transporter
	password string
}

func NewServer(port string, baud int, slaveID byte, password string) *Server {
	handler := modbus.NewRTUClientHandler(port)
	handler.BaudRate = baud
	handler.DataBits = 8
	handler.Parity = "N"
	handler.StopBits = 1
	handler.Timeout = 1 * time.Second
	handler.SlaveId = slaveID
	return &Server{
		handler:  handler,
		password: password,
	}
}

func (s *Server) SendHandler(w http.ResponseWriter, r *http.Request) {
	_, pass, ok := r.BasicAuth()
	if s.password != "" && (!ok || pass != s.password) {
		http.Error(w, "wrong password", http.StatusUnauthorized)
		return
	}
	err := func() error {
		aduRequest, err := ioutil.ReadAll(r.Body)
		if err != nil {
			return err
		}
		aduResponse, err := s.handler.Send(aduRequest)
		var errString string
		if err != nil {
			errString = err.Error()
		}
		body, err := json.Marshal(&modbushttp.SendResponse{
			ADUResponse: aduResponse,
			Error:       errString,
		})
		if err != nil {
			return err
		}
		_, err = w.Write(body)
		return err
	}()
	if err != nil {
		log.Printf("SendHandler: %v", err)
		http.Error(w, err.Error(), 500)
		return
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/api/send", http.HandlerFunc(s.SendHandler)).Methods("POST")
	r.PathPrefix("/debug").Handler(http.DefaultServeMux)
	return r
}

func main() {
	flag.Parse()
	server := NewServer(*serialPort, *baud, byte(*slaveID), *password)
	srv := &http.Server{
		Handler:      server.Router(),
		Addr:         *addr,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	log.Printf("Listening on %v", srv.Addr)
	log.Fatal(srv.ListenAndServe())
}
