// Package udp implements the master's datagram transport.
// Send: a payload is written to a single peer address.
// Listen: a receive loop hands every datagram and its sender address to a callback.
package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"
)

const DefaultBufferSize = 1024

type Conn struct {
	pc      *net.UDPConn
	bufSize int

	mu    sync.Mutex
	addrs map[string]*net.UDPAddr // resolved peer addresses
}

// Listen binds a UDP socket on address (host:port, port 0 picks a free one).
func Listen(address string, bufSize int) (*Conn, error) {
	laddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", address, err)
	}

	pc, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", address, err)
	}

	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	return &Conn{
		pc:      pc,
		bufSize: bufSize,
		addrs:   make(map[string]*net.UDPAddr),
	}, nil
}

func (c *Conn) LocalAddr() *net.UDPAddr {
	return c.pc.LocalAddr().(*net.UDPAddr)
}

func (c *Conn) resolve(address string) (*net.UDPAddr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if addr, ok := c.addrs[address]; ok {
		return addr, nil
	}

	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, err
	}
	c.addrs[address] = addr
	return addr, nil
}

// Send writes payload to address as a single datagram.
func (c *Conn) Send(address string, payload []byte) error {
	addr, err := c.resolve(address)
	if err != nil {
		return err
	}

	_, err = c.pc.WriteToUDP(payload, addr)
	return err
}

// Listen receives datagrams until ctx is cancelled. handler runs on the receive
// goroutine and must not retain payload.
func (c *Conn) Listen(ctx context.Context, handler func(payload []byte, from string)) error {
	// Closing the socket unblocks ReadFromUDP
	go func() {
		<-ctx.Done()
		log.Debugf("udp: context cancelled, closing %s", c.pc.LocalAddr())
		c.pc.Close()
	}()

	buf := make([]byte, c.bufSize)
	for {
		n, from, err := c.pc.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Errorf("udp: failed to read datagram: %v", err)
			continue
		}

		handler(buf[:n], from.String())
	}
}

func (c *Conn) Close() error {
	return c.pc.Close()
}
