// cmd/gateway/main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tamzrod/ct-gateway/internal/config"
	"github.com/tamzrod/ct-gateway/internal/history"
	"github.com/tamzrod/ct-gateway/internal/ingest"
	"github.com/tamzrod/ct-gateway/internal/manager"
	"github.com/tamzrod/ct-gateway/internal/telemetry"
	"github.com/tamzrod/ct-gateway/internal/uplink/fieldbus"
	"github.com/tamzrod/ct-gateway/internal/uplink/ftplink"
	"github.com/tamzrod/ct-gateway/internal/uplink/mqttlink"
)

const warmStartDays = 7

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gateway:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := "gateway.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(log)

	hist := history.New(cfg.Gateway.HistoryDir, log)

	buf := telemetry.NewBuffer()
	if recent, err := hist.LoadRecent(warmStartDays); err != nil {
		log.Warn("history warm start failed", "err", err)
	} else {
		buf.Preload(recent)
		log.Info("history warm start", "readings", buf.Len())
	}

	ftpUp := ftplink.New(cfg.Gateway.FTP, log)
	mgr := manager.New(log,
		mqttlink.New(cfg.Gateway.MQTT, log),
		fieldbus.NewSerial(cfg.Gateway.FieldbusSerial, log),
		fieldbus.NewNetwork(cfg.Gateway.FieldbusNetwork, log),
		ftpUp,
	)

	reader := ingest.New(cfg.Gateway.Serial, log, buf, hist, mgr)

	coord := manager.NewCoordinator(cfg, mgr, reader)
	mgr.SetObserver(coord)

	if active := cfg.ActiveProtocol(); active != "" {
		res := coord.StartProtocol(active)
		log.Info("boot protocol", "protocol", active, "success", res.Success, "msg", res.Message)
		if active != config.ProtocolSerialSource {
			if res := coord.StartProtocol(config.ProtocolSerialSource); !res.Success {
				log.Warn("serial source not started", "msg", res.Message)
			}
		}
	} else {
		results, msg := coord.AutoStartRecommended()
		log.Info("auto start", "msg", msg)
		for name, res := range results {
			log.Info("auto start result", "protocol", name, "success", res.Success, "msg", res.Message)
		}
		if _, ok := results[config.ProtocolSerialSource]; !ok {
			if res := coord.StartProtocol(config.ProtocolSerialSource); !res.Success {
				log.Warn("serial source not started", "msg", res.Message)
			}
		}
	}

	fmt.Println(coord.ExportReport())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info("shutting down")

	reader.Stop()
	if err := ftpUp.Flush(); err != nil {
		log.Warn("final batch upload failed", "err", err)
	}
	coord.StopAll()

	return nil
}
