package udp

import (
	"context"
	"net"
	"testing"
	"time"
)

type datagram struct {
	payload string
	from    string
}

func TestSendAndListen(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", 0)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan datagram, 1)
	done := make(chan error, 1)
	go func() {
		done <- srv.Listen(ctx, func(payload []byte, from string) {
			got <- datagram{payload: string(payload), from: from}
		})
	}()

	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer peer.Close()

	if _, err := peer.WriteToUDP([]byte(`{"type":"introduce"}`), srv.LocalAddr()); err != nil {
		t.Fatal(err)
	}

	select {
	case d := <-got:
		if d.payload != `{"type":"introduce"}` {
			t.Fatalf("payload = %q", d.payload)
		}
		if d.from != peer.LocalAddr().String() {
			t.Fatalf("from = %s, want %s", d.from, peer.LocalAddr())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("datagram not received")
	}

	// And the other direction
	if err := srv.Send(peer.LocalAddr().String(), []byte("pong")); err != nil {
		t.Fatal(err)
	}
	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, _, err := peer.ReadFromUDP(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "pong" {
		t.Fatalf("peer got %q", buf[:n])
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after cancel")
	}
}

func TestListenBindFailure(t *testing.T) {
	first, err := Listen("127.0.0.1:0", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()

	if _, err := Listen(first.LocalAddr().String(), 0); err == nil {
		t.Fatal("binding an address in use must fail")
	}
}

func TestSendUnresolvable(t *testing.T) {
	c, err := Listen("127.0.0.1:0", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Send("not-an-address", []byte("x")); err == nil {
		t.Fatal("expected resolve error")
	}
}
