package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/mikesmitty/poolrtd/internal/bus"
	"github.com/mikesmitty/poolrtd/internal/config"
	"github.com/mikesmitty/poolrtd/internal/logger"
	"github.com/mikesmitty/poolrtd/internal/monitor"
	"github.com/mikesmitty/poolrtd/internal/rtd"
	"github.com/mikesmitty/poolrtd/max31865"
)

func main() {
	cfgPath := flag.String("config", "/etc/poolrtd/poolrtd.yaml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}
	config.Normalize(cfg)

	level, _ := logger.ParseLevel(cfg.Log.Level)
	out := logger.Output(logger.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if c, ok := out.(io.Closer); ok && out != os.Stderr {
		defer c.Close()
	}
	l := logger.NewLogger(log.New(out, "", log.LstdFlags), level)

	if _, err := host.Init(); err != nil {
		l.Fatalf("host init failed: %v", err)
	}

	port, err := spireg.Open(cfg.Bus.SPI)
	if err != nil {
		l.Fatalf("open SPI %q failed: %v", cfg.Bus.SPI, err)
	}
	defer port.Close()

	spiConn, err := max31865.Connect(port)
	if err != nil {
		l.Fatalf("%v", err)
	}

	wiring, _ := cfg.Sensor.WireCount()
	arb := bus.New(cfg.Bus.Settle())

	var channels []*rtd.Channel
	for _, cc := range cfg.Channels {
		line, closer, err := bus.Open(cc.Select.Spec(), "poolrtd")
		if err != nil {
			l.Fatalf("channel %s: %v", cc.Role, err)
		}
		defer closer.Close()

		if err := arb.Register(cc.Role, line); err != nil {
			l.Fatalf("channel %s: %v", cc.Role, err)
		}

		dev, err := max31865.New(arb.Conn(cc.Role, spiConn), cc.Role, cfg.Sensor.Opts())
		if err != nil {
			l.Fatalf("channel %s: %v", cc.Role, err)
		}

		channels = append(channels, rtd.NewChannel(rtd.Role(cc.Role), cc.Label, dev, wiring, cfg.Sensor.RNominal, cfg.Sensor.RRef))
		l.Debugf("channel %s select=%s", cc.Role, cc.Select.Spec())
	}

	opts := monitor.Options{Interval: cfg.Cycle.Interval()}
	if p := cfg.Plausible; p != nil {
		opts.Bounds = &rtd.Bounds{MinC: p.MinC, MaxC: p.MaxC}
	}

	mon := monitor.New(arb, channels, monitor.NewLogSink(l), opts, l)

	rtdType, _ := cfg.Sensor.RTDType()
	l.Infof("%d MAX31865 %s %s sensors on %s, settle %v", len(channels), wiring, rtdType, spiConn, arb.Settle())

	if err := mon.Begin(); err != nil {
		l.Warnf("some channels failed to initialize: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mon.Run(ctx)
}
