// Command device-sim wires together the full astarte device session
// engine against a configurable pairing endpoint and realm: one
// goroutine owns the session, another waits on an interrupt.
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

	astarte "github.com/astarte-platform/astarte-device-sdk-go"
	"github.com/astarte-platform/astarte-device-sdk-go/interfaces"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	realm := flag.String("realm", "", "Astarte realm name")
	pairingURL := flag.String("pairing-url", "", "pairing API base URL")
	pairingJWT := flag.String("pairing-jwt", "", "JWT used for one-time device registration")
	credentialsSecret := flag.String("credentials-secret", "", "pre-obtained credentials secret (skips registration)")
	credentialsDir := flag.String("credentials-dir", "./credentials", "directory to persist device.key/device.csr/device.crt")
	propertyStore := flag.String("property-store", "./properties.db", "path to the bbolt property store")
	metricsAddr := flag.String("metrics-addr", ":9100", "address to serve Prometheus metrics on")
	flag.Parse()

	if *realm == "" || *pairingURL == "" {
		fmt.Fprintln(os.Stderr, "usage: device-sim -realm=... -pairing-url=... [-pairing-jwt=... | -credentials-secret=...]")
		os.Exit(2)
	}

	opts := []astarte.Option{
		astarte.WithRealm(*realm),
		astarte.WithPairing(*pairingURL, *pairingJWT),
		astarte.WithCredentialsDir(*credentialsDir),
		astarte.WithPropertyPersistence(true, *propertyStore),
		astarte.WithConnectionHandler(func(sessionPresent bool) {
			log.Printf("device-sim: connected, session_present=%v", sessionPresent)
		}),
		astarte.WithDisconnectionHandler(func() {
			log.Printf("device-sim: disconnected")
		}),
		astarte.WithDataHandler(func(interfaceName, path string, value any) {
			log.Printf("device-sim: data %s%s = %v", interfaceName, path, value)
		}),
		astarte.WithUnsetHandler(func(interfaceName, path string) {
			log.Printf("device-sim: unset %s%s", interfaceName, path)
		}),
	}
	if *credentialsSecret != "" {
		opts = append(opts, astarte.WithCredentialsSecret(*credentialsSecret))
	}

	dev, err := astarte.New(opts...)
	if err != nil {
		log.Fatalf("device-sim: %v", err)
	}

	if _, err := dev.AddInterface(&interfaces.Interface{
		Name:         "org.astarte-platform.devicesim.ServerDatastream",
		Ownership:    interfaces.Server,
		Type:         interfaces.Datastream,
		Aggregation:  interfaces.Individual,
		MajorVersion: 0,
		MinorVersion: 1,
		Mappings: []interfaces.Mapping{
			{Endpoint: "/%{sensor_id}/value", Type: interfaces.TypeDouble, Reliability: interfaces.Guaranteed},
		},
	}); err != nil {
		log.Fatalf("device-sim: install interface: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	metricsSrv := &http.Server{Addr: *metricsAddr, Handler: promhttp.Handler()}
	group.Go(func() error {
		log.Printf("device-sim: serving metrics on %s/metrics", *metricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		return dev.Start(ctx)
	})

	group.Go(func() error {
		defer cancel()
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-sig:
			return fmt.Errorf("got signal: %s", s)
		}
	})

	if err := group.Wait(); err != nil {
		log.Printf("device-sim: shutting down: %v", err)
	}
	if err := metricsSrv.Close(); err != nil {
		log.Printf("device-sim: metrics server close: %v", err)
	}
	if err := dev.Destroy(); err != nil {
		log.Printf("device-sim: destroy: %v", err)
	}
}
