// Command orb-gateway turns orb signal reports into zone events and settles
// loyalty points against the local ledger.
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

	"gopkg.in/yaml.v3"

	"github.com/orbtap/orb-gateway/internal/config"
	"github.com/orbtap/orb-gateway/internal/indicator"
	"github.com/orbtap/orb-gateway/internal/ledger"
	"github.com/orbtap/orb-gateway/internal/mqtt"
	"github.com/orbtap/orb-gateway/internal/proximity"
	"github.com/orbtap/orb-gateway/internal/radio"
	"github.com/orbtap/orb-gateway/internal/status"
	"github.com/orbtap/orb-gateway/internal/web"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	httpAddr := flag.String("http", "", `HTTP listen address (overrides config, "" disables)`)
	dbPath := flag.String("db", "", "SQLite ledger path (overrides config)")
	heartbeat := flag.Duration("heartbeat", 0, "Heartbeat interval (overrides config, 0 disables)")
	claimThreshold := flag.Int("claim-threshold", 0, "CLAIM zone threshold in dBm (overrides config)")
	nearThreshold := flag.Int("near-threshold", 0, "NEAR zone threshold in dBm (overrides config)")
	fakeRadio := flag.Bool("fake-radio", false, "Emit synthetic orb samples instead of subscribing to the radio topic")
	printConfig := flag.Bool("print-config", false, "Print the effective config and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	// Flags the user actually passed win over the file.
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["broker"] {
		cfg.Broker = *broker
	}
	if set["http"] {
		cfg.HTTPAddr = *httpAddr
	}
	if set["db"] {
		cfg.DBPath = *dbPath
	}
	if set["heartbeat"] {
		cfg.Heartbeat = config.Duration(*heartbeat)
	}
	if set["claim-threshold"] {
		cfg.Proximity.ClaimThreshold = *claimThreshold
	}
	if set["near-threshold"] {
		cfg.Proximity.NearThreshold = *nearThreshold
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if *printConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		fmt.Print(string(out))
		return
	}

	if err := run(cfg, *fakeRadio); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg config.Config, fakeRadio bool) error {
	store, err := ledger.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()
	engine := ledger.NewEngine(store)

	var driver indicator.Driver
	if cfg.Indicator.Enabled {
		d, err := indicator.NewRealDriver(cfg.Indicator.Chip, cfg.Indicator.NearPin, cfg.Indicator.ClaimPin)
		if err != nil {
			return fmt.Errorf("init indicator: %w", err)
		}
		defer d.Close()
		driver = d
	}

	publisher, err := mqtt.NewRealPublisher(cfg.Broker)
	if err != nil {
		return fmt.Errorf("connect mqtt: %w", err)
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		ClaimThreshold:  cfg.Proximity.ClaimThreshold,
		NearThreshold:   cfg.Proximity.NearThreshold,
		ClaimCooldownMs: cfg.Proximity.ClaimCooldown.Duration().Milliseconds(),
		NearCooldownMs:  cfg.Proximity.NearCooldown.Duration().Milliseconds(),
		HeartbeatMs:     cfg.Heartbeat.Duration().Milliseconds(),
		Broker:          cfg.Broker,
		HTTPAddr:        cfg.HTTPAddr,
		DBPath:          cfg.DBPath,
	})
	metrics := status.NewMetrics()

	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Publish startup event with the active configuration
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp: snap.Now,
		Event:     "STARTUP",
		Retained:  true,
		Config: &mqtt.SystemConfig{
			ClaimThreshold:  cfg.Proximity.ClaimThreshold,
			NearThreshold:   cfg.Proximity.NearThreshold,
			ClaimCooldownMs: cfg.Proximity.ClaimCooldown.Duration().Milliseconds(),
			NearCooldownMs:  cfg.Proximity.NearCooldown.Duration().Milliseconds(),
			HeartbeatMs:     cfg.Heartbeat.Duration().Milliseconds(),
			Broker:          cfg.Broker,
		},
		Network: mqttNetwork(snap.Network),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status and wallet API server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, engine, metrics)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http server listening on %s", cfg.HTTPAddr)
	}

	var samples <-chan proximity.Sample
	if fakeRadio {
		log.Printf("using fake radio samples")
		samples = fakeRadioSamples()
	} else {
		sampler, err := radio.NewMQTTSampler(cfg.Broker, 64)
		if err != nil {
			return fmt.Errorf("subscribe radio: %w", err)
		}
		defer sampler.Close()
		samples = sampler.Samples()
	}

	settles, err := publisher.ListenSettleRequests(16)
	if err != nil {
		return fmt.Errorf("subscribe settle requests: %w", err)
	}

	log.Printf("started: broker=%s http=%s db=%s claim=%d near=%d heartbeat=%v",
		cfg.Broker, cfg.HTTPAddr, cfg.DBPath,
		cfg.Proximity.ClaimThreshold, cfg.Proximity.NearThreshold, cfg.Heartbeat.Duration())

	var tick <-chan time.Time
	if cfg.Heartbeat.Duration() > 0 {
		ticker := time.NewTicker(cfg.Heartbeat.Duration())
		defer ticker.Stop()
		tick = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(cfg.Proximity.Classifier(), samples, settles, engine, publisher, publisher, driver, tracker, metrics, time.Now, tick, sigCh)
}

func runLoop(classifierCfg proximity.Config, samples <-chan proximity.Sample, settles <-chan mqtt.SettleRequest, engine *ledger.Engine, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, driver indicator.Driver, tracker *status.Tracker, metrics *status.Metrics, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()
	classifier, err := proximity.NewClassifier(classifierCfg)
	if err != nil {
		return fmt.Errorf("init classifier: %w", err)
	}

	var settleTally mqtt.SettleCounts
	lastZone := proximity.Zone("")

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			if driver != nil {
				if err := driver.SetZone(proximity.ZoneIdle); err != nil {
					log.Printf("indicator error: %v", err)
				}
			}
			return nil

		case s, ok := <-samples:
			if !ok {
				// Radio source is gone; keep serving settles and HTTP.
				samples = nil
				continue
			}
			t := s.Time
			if t.IsZero() {
				t = now()
			}
			zone, event := classifier.Classify(s.PeerID, s.Strength, t)

			if tracker != nil {
				tracker.RecordSample(s.PeerID, zone, t, classifier.TrackedPeers(), classifier.Counts())
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
			}
			if metrics != nil {
				metrics.RecordSample()
				metrics.SetTrackedOrbs(classifier.TrackedPeers())
				if mqttStatus != nil {
					metrics.SetMQTTConnected(mqttStatus.IsConnected())
				}
			}

			if driver != nil && zone != lastZone {
				if err := driver.SetZone(zone); err != nil {
					log.Printf("indicator error: %v", err)
				}
			}
			lastZone = zone

			if event != nil {
				log.Printf("event: %s orb=%s strength=%d", event.Zone, event.PeerID, event.Strength)
				if metrics != nil {
					metrics.RecordEvent(event.Zone)
				}
				if err := publisher.Publish(*event); err != nil {
					log.Printf("publish error: %v", err)
					// Don't crash on publish failure
				}
			}

		case req, ok := <-settles:
			if !ok {
				settles = nil
				continue
			}
			result, err := engine.Settle(req.LedgerRequest())

			direction := ledger.DirectionEarn
			if req.Amount < 0 {
				direction = ledger.DirectionSpend
			}

			outcome := mqtt.SettleResult{Timestamp: now(), Request: req}
			if err != nil {
				outcome.Err = err
				settleTally.Rejected++
				log.Printf("settle rejected: user=%s interaction=%s: %v", req.UserID, req.InteractionID, err)
			} else {
				outcome.Result = &result
				if result.Direction == ledger.DirectionSpend {
					settleTally.Spends++
				} else {
					settleTally.Earns++
				}
				log.Printf("settle: user=%s interaction=%s %s %d -> %s (balance %d)",
					req.UserID, req.InteractionID, result.Direction, result.Amount,
					result.Destination, result.NewBalance)
			}

			if tracker != nil {
				tracker.RecordSettle(result.Direction, err != nil)
			}
			if metrics != nil {
				settleOutcome := "ok"
				if err != nil {
					settleOutcome = "rejected"
				}
				metrics.RecordSettle(string(direction), settleOutcome)
			}

			if err := publisher.PublishSettleResult(outcome); err != nil {
				log.Printf("settle result publish error: %v", err)
			}

		case <-tick:
			t := now()
			counts := classifier.Counts()
			hbEvent := mqtt.SystemEvent{
				Timestamp: t,
				Event:     "HEARTBEAT",
				Heartbeat: &mqtt.HeartbeatInfo{
					UptimeSeconds: int64(t.Sub(startTime) / time.Second),
					EventCounts:   mqtt.HeartbeatCounts{Near: counts.Near, Claim: counts.Claim},
					Settles:       settleTally,
					TrackedOrbs:   classifier.TrackedPeers(),
				},
			}

			// Refresh network info for heartbeats
			net := readNetworkInfo()
			hbEvent.Network = mqttNetwork(net)
			if tracker != nil {
				if net != nil {
					tracker.SetNetwork(net)
				}
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
			}

			log.Printf("heartbeat: uptime=%ds near=%d claim=%d earns=%d spends=%d rejected=%d orbs=%d",
				hbEvent.Heartbeat.UptimeSeconds, counts.Near, counts.Claim,
				settleTally.Earns, settleTally.Spends, settleTally.Rejected, classifier.TrackedPeers())

			if err := publisher.PublishSystem(hbEvent); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

func mqttNetwork(net *status.NetworkInfo) *mqtt.NetworkInfo {
	if net == nil {
		return nil
	}
	return &mqtt.NetworkInfo{
		Type:       net.Type,
		IP:         net.IP,
		Status:     net.Status,
		Gateway:    net.Gateway,
		WifiStatus: net.WifiStatus,
		SSID:       net.SSID,
	}
}

// fakeRadioSamples emits a synthetic approach/dwell/depart cycle so the
// pipeline can be demoed without beacons or a BLE scanner.
func fakeRadioSamples() <-chan proximity.Sample {
	ch := make(chan proximity.Sample)
	go func() {
		strengths := []int{-75, -55, -40, -15, -10, -45, -70, -90}
		for i := 0; ; i++ {
			ch <- proximity.Sample{
				PeerID:   "orb_demo",
				Strength: strengths[i%len(strengths)],
				Time:     time.Now(),
			}
			time.Sleep(time.Second)
		}
	}()
	return ch
}
