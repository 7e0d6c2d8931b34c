package easycomm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
	"github.com/w1xm/spid_controller/rotator"
	"golang.org/x/sync/errgroup"
)

// Protocol docs at https://github.com/Hamlib/Hamlib/blob/master/rotators/easycomm/easycomm.txt
//
// The controller answers the EasyComm II subset a host tracking program
// needs, plus PK to park.

// Version is reported by VE.
const Version = "SPID-GO"

// Status register flags, one byte per axis as in EasyComm III.
const (
	axisIdle     = 1
	axisPosition = 4 | 2
)

// Error register flags.
const (
	errNone   = 1
	errHoming = 4
	errMotor  = 8
)

// Report holds the values a query can return, keyed by command.
type Report struct {
	AzPos          float64 `report:"AZ"`
	ElPos          float64 `report:"EL"`
	StatusRegister uint64  `report:"GS"`
	ErrorRegister  uint64  `report:"GE"`
	Version        string  `report:"VE"`
}

// NewReport summarizes a controller status.
func NewReport(status rotator.Status) Report {
	r := Report{
		AzPos:          status.AzimuthPosition(),
		ElPos:          status.ElevationPosition(),
		StatusRegister: axisIdle | axisIdle<<8,
		ErrorRegister:  errNone,
		Version:        Version,
	}
	if m, ok := status.(rotator.Mover); ok {
		var az, el uint64 = axisIdle, axisIdle
		if m.AzimuthMoving() {
			az = axisPosition
		}
		if m.ElevationMoving() {
			el = axisPosition
		}
		r.StatusRegister = az | el<<8
	}
	if h, ok := status.(rotator.Health); ok {
		r.ErrorRegister = 0
		if h.Halted() {
			r.ErrorRegister |= errMotor
		}
		if !h.Homed() {
			r.ErrorRegister |= errHoming
		}
		if r.ErrorRegister == 0 {
			r.ErrorRegister = errNone
		}
	}
	return r
}

// Format renders the answer to a query, or reports false if cmd is not a
// query.
func (r Report) Format(cmd string) (string, bool) {
	v := reflect.ValueOf(r)
	for i := 0; i < v.NumField(); i++ {
		field := v.Type().Field(i)
		tag := field.Tag.Get("report")
		if tag != cmd {
			continue
		}
		fv := v.Field(i)
		switch fv.Kind() {
		case reflect.Float32, reflect.Float64:
			return fmt.Sprintf("%s%.1f", tag, fv.Float()), true
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return fmt.Sprintf("%s%d", tag, fv.Uint()), true
		case reflect.String:
			return fmt.Sprintf("%s%s", tag, fv.String()), true
		}
	}
	return "", false
}

// Server answers a host speaking EasyComm II on behalf of a rotator.
type Server struct {
	r      rotator.Rotator
	status func() rotator.Status
}

func NewServer(r rotator.Rotator, status func() rotator.Status) *Server {
	return &Server{r: r, status: status}
}

var cmdRE = regexp.MustCompile(`^([A-Z]{2})(.*)$`)

// handle executes one command word and returns the reply, if any.
func (s *Server) handle(input string) (string, error) {
	parts := cmdRE.FindStringSubmatch(strings.ToUpper(input))
	if parts == nil {
		return "", fmt.Errorf("unrecognized command %q", input)
	}
	cmd, arg := parts[1], parts[2]
	switch cmd {
	case "SA":
		s.r.StopAzimuth()
		return "", nil
	case "SE":
		s.r.StopElevation()
		return "", nil
	case "PK":
		s.r.Park()
		return "", nil
	case "AZ", "EL":
		if arg == "" {
			break
		}
		angle, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return "", fmt.Errorf("%s: %w", cmd, err)
		}
		if math.IsNaN(angle) || math.IsInf(angle, 0) {
			return "", fmt.Errorf("%s: angle %q is not finite", cmd, arg)
		}
		if cmd == "AZ" {
			s.r.SetAzimuthPosition(angle)
		} else {
			s.r.SetElevationPosition(angle)
		}
		return "", nil
	}
	if arg != "" {
		return "", fmt.Errorf("unknown command %q", input)
	}
	reply, ok := NewReport(s.status()).Format(cmd)
	if !ok {
		return "", fmt.Errorf("unknown command %q", input)
	}
	return reply, nil
}

// Serve handles one host link until it fails, reaches EOF or ctx is done.
// The link is closed on return.
func (s *Server) Serve(ctx context.Context, conn io.ReadWriteCloser) error {
	g, ctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	var once sync.Once
	closeConn := func() { once.Do(func() { conn.Close() }) }
	g.Go(func() error {
		// Wait for context to be canceled, then close connection.
		select {
		case <-ctx.Done():
		case <-done:
		}
		closeConn()
		return nil
	})
	g.Go(func() error {
		defer close(done)
		scanner := bufio.NewScanner(conn)
		scanner.Split(bufio.ScanWords)
		for scanner.Scan() {
			input := scanner.Text()
			reply, err := s.handle(input)
			if err != nil {
				log.Printf("parsing %q: %v", input, err)
				continue
			}
			if reply == "" {
				continue
			}
			if _, err := fmt.Fprintf(conn, "%s\n", reply); err != nil {
				return err
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			return fmt.Errorf("reading port: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// ListenSerial serves the host on a serial port, reopening it every second
// after a failure, until ctx is done.
func (s *Server) ListenSerial(ctx context.Context, port string, baud int) error {
	for {
		conn, err := serial.OpenPort(&serial.Config{Name: port, Baud: baud})
		if err != nil {
			log.Printf("opening %q: %v", port, err)
		} else {
			log.Printf("opened %q at %d baud", port, baud)
			if err := s.Serve(ctx, conn); err != nil {
				log.Printf("serving %q: %v", port, err)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
}

// ListenTCP serves EasyComm over TCP, one host per connection, for hosts
// that reach the controller through a serial-over-IP bridge.
func (s *Server) ListenTCP(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("failed to accept: %v", err)
			continue
		}
		log.Printf("accepted EasyComm connection from %v", conn.RemoteAddr())
		go func() {
			if err := s.Serve(ctx, conn); err != nil {
				log.Printf("serving %v: %v", conn.RemoteAddr(), err)
			}
		}()
	}
}
