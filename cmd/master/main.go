package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tdma-harness/mastercoord/driver/stub"
	"github.com/tdma-harness/mastercoord/internal/coordinator"
	"github.com/tdma-harness/mastercoord/internal/registry"
	"github.com/tdma-harness/mastercoord/protocol"
	"github.com/tdma-harness/mastercoord/transport"
)

func main() {
	localPort := flag.Int("backend-port", protocol.DefaultBackendPort, "local UDP port the backend connects to")
	backendHost := flag.String("backend-host", "127.0.0.1", "backend host to send responses to")
	backendTargetPort := flag.Int("backend-target-port", protocol.DefaultBackendPort, "backend port to send responses to")
	mtu := flag.Int("mtu", protocol.DefaultMTU, "maximum on-air frame size, header included")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backendSocket, err := transport.NewUDPSocket(*localPort, *backendHost, *backendTargetPort)
	if err != nil {
		log.Fatalf("[Master] backend socket bind failed: %v", err)
	}
	defer backendSocket.Close()

	// The UWB radio PHY is an out-of-scope collaborator (spec §1/§6.6); the
	// in-memory stub stands in for it until a real driver is wired here.
	radioDriver := stub.New()
	gate := transport.NewRadioGate(radioDriver, protocol.MaxConsecutiveUWBFailures, time.Duration(protocol.UWBFailureResetIntervalMs)*time.Millisecond)

	coord := coordinator.New(coordinator.Config{
		Registry: registry.New(),
		Clock:    coordinator.SystemClock{},
		Radio:    gate,
		Backend:  backendSocket,
		MTU:      *mtu,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		coord.Run()
	}()

	log.Printf("[Master] listening for backend on :%d, forwarding responses to %s:%d", *localPort, *backendHost, *backendTargetPort)

	<-ctx.Done()
	log.Println("[Master] shutting down")
	coord.Stop()
	<-done
}
