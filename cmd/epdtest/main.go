// Command epdtest runs the full Spectra 6 panel bring-up sequence:
// init, clear, test card, sleep. It is the end-to-end "is the panel
// alive" check; run epddiag first if nothing happens at all.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"epdiag/internal/config"
	"epdiag/internal/convert"
	"epdiag/internal/epd"
	appLog "epdiag/internal/log"
	"epdiag/internal/pattern"
)

type flagConfig struct {
	configPath string
	pattern    string
	skipClear  bool
	logLevel   string
}

func main() {
	flags := parseFlags()
	appLog.SetLevel(flags.logLevel)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	profile, err := conf.ActiveProfile()
	if err != nil {
		appLog.Error("failed to resolve pin profile", err)
		os.Exit(1)
	}

	appLog.Info("panel test starting",
		"profile", conf.Profile,
		"spi_port", conf.SPI.Port,
		"spi_speed_hz", conf.SPI.SpeedHz,
		"pattern", flags.pattern,
	)

	buf, err := buildPattern(flags.pattern, epd.Spectra6)
	if err != nil {
		appLog.Error("failed to build test pattern", err)
		os.Exit(1)
	}

	pins := epd.Pins{
		RST:  profile.RST,
		DC:   profile.DC,
		CS:   profile.CS,
		CSS:  profile.CSS,
		BUSY: profile.BUSY,
	}
	dev, err := epd.Open(conf.SPI.Port, conf.SPI.SpeedHz, pins, epd.Spectra6)
	if err != nil {
		appLog.Error("failed to open panel", err)
		os.Exit(1)
	}
	defer dev.Close()

	fmt.Println("Spectra 6 panel test")
	fmt.Println("====================")
	appLog.Debug("panel opened", "dev", dev.String(), "busy_high", dev.BusyLevel())

	fmt.Println("Initializing panel...")
	if err := dev.Init(); err != nil {
		appLog.Error("panel init failed", err)
		os.Exit(1)
	}

	if !flags.skipClear {
		fmt.Println("Clearing panel to white (this takes a while)...")
		if err := dev.Clear(); err != nil && !warnOnBusyTimeout(err) {
			appLog.Error("panel clear failed", err)
			os.Exit(1)
		}
		// Let the operator confirm the clear before the pattern lands.
		time.Sleep(10 * time.Second)
	}

	fmt.Println("Displaying 6-color test pattern...")
	if err := dev.Display(buf); err != nil && !warnOnBusyTimeout(err) {
		appLog.Error("pattern display failed", err)
		os.Exit(1)
	}

	fmt.Println("Putting panel to sleep...")
	if err := dev.Sleep(); err != nil && !warnOnBusyTimeout(err) {
		appLog.Error("panel sleep failed", err)
		os.Exit(1)
	}

	fmt.Println("Done. The panel should show six horizontal color stripes:")
	fmt.Println("  Black, White, Red, Yellow, Blue, Green (top to bottom)")
}

// buildPattern returns the packed transmission buffer for the chosen
// pattern. "card" renders the labelled test card; "stripes" generates
// the raw bands directly.
func buildPattern(name string, opts epd.Opts) ([]byte, error) {
	switch name {
	case "stripes":
		return convert.PackStripes(opts.Width, opts.Height), nil
	case "card":
		img := pattern.TestCard(opts.Width, opts.Height)
		return convert.Pack(img, opts.Width, opts.Height)
	default:
		return nil, fmt.Errorf("unknown pattern %q (want card or stripes)", name)
	}
}

// warnOnBusyTimeout downgrades a late BUSY release to a warning. Some
// panels finish the refresh after the budget expires; the image is
// usually fine.
func warnOnBusyTimeout(err error) bool {
	if errors.Is(err, epd.ErrBusyTimeout) {
		appLog.Error("panel busy past its budget, continuing", err)
		return true
	}
	return false
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "config.yaml", "Path to config file")
	flag.StringVar(&cfg.pattern, "pattern", "card", "Test pattern: card (labelled) or stripes (raw bands)")
	flag.BoolVar(&cfg.skipClear, "skip-clear", false, "Skip the initial clear-to-white pass")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug, info, error")

	flag.Parse()

	return cfg
}
