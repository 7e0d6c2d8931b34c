// Package modbus wraps a goburrow Modbus client with a reconnect loop that
// polls the device while the link is up.
package modbus

import (
	"context"
	"encoding/binary"
	"errors"
	"log"
	"time"

	"github.com/goburrow/modbus"
	"github.com/w1xm/spid_controller/internal/modbus/modbushttp"
)

type modbusHandler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

type Client struct {
	// Port and BaudRate create a local serial connection
	Port string
	// BaudRate defaults to 19200
	BaudRate int
	SlaveId  byte
	// URL creates a remote connection through a modbus_server bridge
	URL      string
	Password string

	// Poll is called in a loop while the connection is active, with
	// Interval between calls.
	Poll     func() error
	Interval time.Duration

	handler modbusHandler
	modbus.Client
}

// Name identifies the link in log messages.
func (c *Client) Name() string {
	if c.URL != "" {
		return c.URL
	}
	return c.Port
}

// Connect builds the transport and starts polling in the background. It
// returns immediately; the link is retried every second until ctx is done.
func (c *Client) Connect(ctx context.Context) error {
	if c.Poll == nil {
		return errors.New("modbus: no Poll function")
	}
	if c.URL != "" {
		c.handler = modbushttp.NewClient(c.URL, c.Password, c.SlaveId)
	} else {
		if c.Port == "" {
			return errors.New("modbus: port or URL is required")
		}
		handler := modbus.NewRTUClientHandler(c.Port)
		handler.BaudRate = c.BaudRate
		if handler.BaudRate == 0 {
			handler.BaudRate = 19200
		}
		handler.DataBits = 8
		handler.Parity = "N"
		handler.StopBits = 1
		handler.Timeout = 1 * time.Second
		handler.SlaveId = c.SlaveId
		c.handler = handler
	}
	c.Client = modbus.NewClient(c.handler)
	go c.reconnectLoop(ctx)
	return nil
}

func (c *Client) reconnectLoop(ctx context.Context) {
	defer c.handler.Close()
	for {
		err := c.handler.Connect()
		if err != nil {
			log.Printf("opening %q: %v", c.Name(), err)
		} else if err := c.watch(ctx); err != nil && ctx.Err() == nil {
			log.Printf("watching %q: %v", c.Name(), err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(1 * time.Second):
		}
	}
}

func (c *Client) watch(ctx context.Context) error {
	defer c.handler.Close()
	for {
		if err := c.Poll(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.Interval):
		}
	}
}

func (c *Client) WriteCoil(coil int, value bool) error {
	_, err := c.WriteSingleCoil(uint16(coil), CoilValue(value))
	return err
}

// CoilValue is the on/off encoding used by write-single-coil.
func CoilValue(on bool) uint16 {
	if on {
		return 0xFF00
	}
	return 0
}

func BytesToBits(bs []byte) []bool {
	var out []bool
	for _, b := range bs {
		for i := 0; i < 8; i++ {
			out = append(out, (b>>uint(i)&1) == 1)
		}
	}
	return out
}

// BytesToWords splits register data into big-endian words.
func BytesToWords(bs []byte) []uint16 {
	out := make([]uint16, len(bs)/2)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(bs[2*i:])
	}
	return out
}

// WordsToBytes is the inverse of BytesToWords.
func WordsToBytes(ws []uint16) []byte {
	out := make([]byte, 2*len(ws))
	for i, w := range ws {
		binary.BigEndian.PutUint16(out[2*i:], w)
	}
	return out
}
