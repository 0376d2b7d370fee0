// Command serialmon tails the ESP32 display client's serial output.
// Modes map to the different checks done during bring-up: a plain echo,
// a 15s boot status check, a 30s quick read and a 60s color-cycle watch.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"epdiag/internal/config"
	appLog "epdiag/internal/log"
	"epdiag/internal/serialmon"
)

type flagConfig struct {
	configPath string
	mode       string
	port       string
	baud       int
	logLevel   string
}

type mode struct {
	duration time.Duration
	annotate serialmon.Annotator
	banner   string
}

func modeFor(name string) (mode, error) {
	switch name {
	case "echo":
		return mode{
			banner: "ESP32 Monitor - Press Ctrl+C to stop",
		}, nil
	case "check":
		return mode{
			duration: 15 * time.Second,
			annotate: serialmon.StatusAnnotator(),
			banner:   "Listening for ESP32 output (15 seconds)...",
		}, nil
	case "quick":
		return mode{
			duration: 30 * time.Second,
			banner:   "Reading ESP32 output (30 seconds)...",
		}, nil
	case "long":
		return mode{
			duration: 60 * time.Second,
			annotate: serialmon.ColorAnnotator(),
			banner: "Monitoring ESP32 for display changes (60 seconds)...\n" +
				"Watch your display - it should cycle: RED -> BLUE -> GREEN -> WHITE",
		}, nil
	default:
		return mode{}, fmt.Errorf("unknown mode %q (want echo, check, quick or long)", name)
	}
}

func main() {
	flags := parseFlags()
	appLog.SetLevel(flags.logLevel)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	port := conf.Serial.Port
	if flags.port != "" {
		port = flags.port
	}
	baud := conf.Serial.Baud
	if flags.baud > 0 {
		baud = flags.baud
	}

	m, err := modeFor(flags.mode)
	if err != nil {
		appLog.Error("invalid mode", err)
		os.Exit(1)
	}

	fmt.Printf("Connecting to %s at %d baud...\n", port, baud)
	r, err := serialmon.Open(port, baud)
	if err != nil {
		appLog.Error("serial connection failed", err, "port", port)
		fmt.Println("Make sure the ESP32 is connected and the port is correct.")
		os.Exit(1)
	}
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nStopped monitoring.")
		cancel()
	}()

	fmt.Println(m.banner)

	mon := &serialmon.Monitor{
		Out:      os.Stdout,
		Prefix:   "ESP32: ",
		Annotate: m.annotate,
	}
	lines, err := mon.Watch(ctx, r, m.duration)
	if err != nil {
		appLog.Error("monitoring failed", err)
		os.Exit(1)
	}

	if m.duration > 0 {
		fmt.Printf("\nMonitoring complete. %d lines seen.\n", lines)
		if lines == 0 {
			fmt.Println("No output from the device. Check power, port and baud rate.")
		}
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "config.yaml", "Path to config file")
	flag.StringVar(&cfg.mode, "mode", "echo", "Monitor mode: echo, check, quick or long")
	flag.StringVar(&cfg.port, "port", "", "Serial port (overrides config)")
	flag.IntVar(&cfg.baud, "baud", 0, "Baud rate (overrides config)")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug, info, error")

	flag.Parse()

	return cfg
}
