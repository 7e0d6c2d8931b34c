// Command spid runs the rotator controller: the control loop, a hardware
// backend, the EasyComm host link, a rotctld server and the HTTP status
// surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/w1xm/spid_controller/config"
	"github.com/w1xm/spid_controller/easycomm"
	"github.com/w1xm/spid_controller/rotator"
	"github.com/w1xm/spid_controller/rotctld"
	"github.com/w1xm/spid_controller/spid"
	"golang.org/x/sync/errgroup"
)

var (
	configPath  = flag.String("config", "", "YAML configuration file (default: simulator with built-in settings)")
	addr        = flag.String("addr", "127.0.0.1:8502", "HTTP address to listen on")
	rotctldAddr = flag.String("rotctld", "127.0.0.1:4533", "rotctld address to listen on, empty to disable")
	serialPort  = flag.String("serial", "", "serial port for the EasyComm host link")
	easycommTCP = flag.String("easycomm_tcp", "", "TCP address for EasyComm hosts, empty to disable")
)

func loadConfig() (*config.Config, error) {
	if *configPath == "" {
		cfg := config.Default()
		return &cfg, cfg.Validate()
	}
	return config.Load(*configPath)
}

func main() {
	flag.Parse()
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, rotator.SystemClock{}); err != nil {
		log.Fatal(err)
	}
}

// run serves until ctx is done or a listener fails. The hardware is released
// on every return path, after its background goroutines have stopped.
func run(ctx context.Context, cfg *config.Config, clock rotator.Clock) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	hw, err := openHardware(ctx, g, cfg, clock)
	if err != nil {
		cancel()
		g.Wait()
		return err
	}
	defer func() {
		cancel()
		g.Wait()
		hw.Close()
	}()

	server := NewServer(nil)
	c, err := spid.New(cfg.Controller, hw.Hardware, server.statusCallback)
	if err != nil {
		return err
	}
	server.r = c
	server.statusCallback(c.Status())
	hw.Attach(c)

	g.Go(func() error { return c.Run(ctx) })

	status := func() rotator.Status { return c.Status() }
	host := easycomm.NewServer(c, status)
	if *serialPort != "" {
		g.Go(func() error { return host.ListenSerial(ctx, *serialPort, cfg.Controller.BaudRate) })
	}
	if *easycommTCP != "" {
		g.Go(func() error { return host.ListenTCP(ctx, *easycommTCP) })
	}
	if *rotctldAddr != "" {
		rs := rotctld.NewServer(c, status, cfg.Controller)
		g.Go(func() error { return rs.Listen(ctx, *rotctldAddr) })
	}

	srv := &http.Server{
		Handler:      server.Router(),
		Addr:         *addr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		log.Printf("Listening on %v", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return fmt.Errorf("exiting: %w", err)
	}
	return nil
}
