// Command net80211d is the station daemon: it wires a Radio driver, the
// core station orchestrator, the history store, and the control surface
// together.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/net80211/station/internal/adapters/control"
	"github.com/net80211/station/internal/adapters/driver"
	"github.com/net80211/station/internal/adapters/history"
	"github.com/net80211/station/internal/config"
	"github.com/net80211/station/internal/core/domain"
	"github.com/net80211/station/internal/core/ports"
	"github.com/net80211/station/internal/core/station"
	"github.com/net80211/station/internal/observability"
	"github.com/net80211/station/internal/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.InitMetrics()

	shutdownTracer, err := telemetry.InitTracer()
	if err != nil {
		log.Fatalf("init tracer: %v", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	hist, err := history.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open history store %s: %v", cfg.DBPath, err)
	}

	obs := observability.New(hist)
	defer obs.Close()

	if len(cfg.Interfaces) == 0 {
		log.Fatal("no interface configured; pass -i or set NET80211_INTERFACE")
	}
	iface := cfg.Interfaces[0]

	var drv ports.Driver
	if cfg.MockMode {
		drv = newMockDriver()
	} else {
		radio, err := driver.New(iface)
		if err != nil {
			log.Fatalf("open radio %s: %v", iface, err)
		}
		defer radio.Close()
		drv = radio
	}

	mac, err := interfaceMAC(iface, cfg.MockMode)
	if err != nil {
		log.Fatalf("resolve MAC for %s: %v", iface, err)
	}

	link := domain.NewLink(iface, domain.RadioProperties{
		MACAddress:        mac,
		SupportedChannels: drv.SupportedChannels(),
	})

	upper := loopbackUpperStack{}
	clock := ports.RealClock{}

	st := station.NewWithDwell(link, drv, upper, clock, obs, cfg.DwellTime)
	defer st.Close()

	if err := st.BringUp(); err != nil {
		log.Fatalf("bring up %s: %v", iface, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if radio, ok := drv.(*driver.Radio); ok {
		go func() {
			if err := radio.Listen(ctx, st.Receive); err != nil {
				log.Printf("driver: listen stopped: %v", err)
			}
		}()
	}

	ctrl := control.NewServer(cfg.ControlAddr, st)
	ctrl.History = hist
	ctrl.Link = iface
	obs.Broadcaster = ctrl
	go func() {
		if err := ctrl.Run(ctx); err != nil {
			log.Printf("control surface stopped: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("net80211d shutting down...")
	cancel()
}

// loopbackUpperStack is the default ports.UpperStack: it simply logs
// delivered frames. A real deployment replaces this with a TUN/TAP writer.
type loopbackUpperStack struct{}

func (loopbackUpperStack) DeliverFrame(dst, src [6]byte, etherType uint16, payload []byte) {
	log.Printf("deliver: %x -> %x type=%#04x len=%d", src, dst, etherType, len(payload))
}
