// Package rotctld serves the hamlib rotctld network protocol, so hamlib
// clients such as gpredict can drive the rotator directly.
package rotctld

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"strconv"
	"strings"

	"github.com/w1xm/spid_controller/config"
	"github.com/w1xm/spid_controller/rotator"
)

// hamlib error codes
const (
	rprtOK     = 0
	rprtEINVAL = -1
	rprtENIMPL = -4
)

type Server struct {
	r      rotator.Rotator
	status func() rotator.Status
	cfg    config.Controller
}

func NewServer(r rotator.Rotator, status func() rotator.Status, cfg config.Controller) *Server {
	return &Server{r: r, status: status, cfg: cfg}
}

// Listen accepts rotctld clients on addr until ctx is done.
func (s *Server) Listen(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Printf("rotctld listening on %v", ln.Addr())
	go func() {
		<-ctx.Done()
		log.Print("shutdown; closing rotctld socket")
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
		go func() {
			defer conn.Close()
			log.Printf("accepted connection from %v", conn.RemoteAddr())
			if err := s.Handle(conn); err != nil {
				log.Printf("reading from %v: %v", conn.RemoteAddr(), err)
			}
		}()
	}
}

func (s *Server) dumpCaps(w io.Writer) {
	minEl, maxEl := 0, 0
	rotType := "Azimuth"
	if s.cfg.Elevation {
		minEl, maxEl = s.cfg.ElevationLimits.Min, s.cfg.ElevationLimits.Max
		rotType = "Az-El"
	}
	fmt.Fprintf(w, `Model name: RAS
Mfg name: SPID
Rot type: %s
Min Azimuth: %d.00
Max Azimuth: %d.00
Min Elevation: %d.00
Max Elevation: %d.00
Can set Position: Y
Can get Position: Y
Can Stop: Y
Can Park: Y
Can Reset: N
Can Move: N
Can get Info: Y
`, rotType, s.cfg.Azimuth.Min, s.cfg.Azimuth.Max, minEl, maxEl)
}

// Handle serves one client until it disconnects or sends q.
func (s *Server) Handle(conn io.ReadWriter) error {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		// Two forms of command: single character, or "+\" followed by command name.
		cmd := strings.TrimSpace(scanner.Text())
		var args []string
		var extended bool
		if len(cmd) == 0 {
			continue
		} else if len(cmd) > 2 && cmd[0:2] == `+\` {
			extended = true
			parts := strings.Fields(cmd)
			cmd = parts[0][2:]
			args = parts[1:]
			fmt.Fprintf(conn, "%s:\n", cmd)
		} else if cmd[0] == '\\' {
			parts := strings.Fields(cmd)
			cmd = parts[0][1:]
			args = parts[1:]
		} else {
			// Space after command is optional.
			args = strings.Fields(cmd[1:])
			cmd = string(cmd[0])
		}
		rprt := rprtOK
		switch cmd {
		case "q", "Q", "quit":
			return nil
		case "1", "dump_caps":
			s.dumpCaps(conn)
		case "_", "get_info":
			fmt.Fprintf(conn, "SPID RAS\n")
		case "S", "stop":
			extended = true // always print RPRT
			s.r.Stop()
		case "K", "park":
			extended = true // always print RPRT
			s.r.Park()
		case "P", "set_pos":
			extended = true // always print RPRT
			az, el, ok := parsePos(args)
			if !ok {
				rprt = rprtEINVAL
				break
			}
			// hamlib clients may use -180..180
			if az < 0 {
				az += 360
			}
			s.r.SetAzimuthPosition(az)
			if s.cfg.Elevation {
				s.r.SetElevationPosition(el)
			}
		case "p", "get_pos":
			status := s.status()
			if extended {
				fmt.Fprintf(conn, "Azimuth: %.6f\nElevation: %.6f\n", status.AzimuthPosition(), status.ElevationPosition())
			} else {
				fmt.Fprintf(conn, "%.6f\n%.6f\n", status.AzimuthPosition(), status.ElevationPosition())
			}
		default:
			rprt = rprtENIMPL
		}
		if extended || rprt != rprtOK {
			fmt.Fprintf(conn, "RPRT %d\n", rprt)
		}
	}
	return scanner.Err()
}

func parsePos(args []string) (az, el float64, ok bool) {
	if len(args) != 2 {
		return 0, 0, false
	}
	az, ok = parseAngle(args[0])
	if !ok {
		return 0, 0, false
	}
	el, ok = parseAngle(args[1])
	if !ok {
		return 0, 0, false
	}
	return az, el, true
}

func parseAngle(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
