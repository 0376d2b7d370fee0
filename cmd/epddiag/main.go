// Command epddiag runs the e-paper connection diagnostics: system info,
// GPIO connectivity, SPI transfer, the reset/BUSY handshake and the
// dual chip-select check. It never uploads image data; it exists to
// answer "is the HAT wired and talking" before epdtest is worth running.
package main

import (
	"flag"
	"fmt"
	"os"

	"epdiag/internal/config"
	"epdiag/internal/diag"
	"epdiag/internal/epd"
	appLog "epdiag/internal/log"
)

type flagConfig struct {
	configPath string
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

	fmt.Println("E-Paper display diagnostics")
	fmt.Println("===========================")
	fmt.Printf("Pin profile %q: RST=%d DC=%d CS=%d CSS=%d BUSY=%d\n\n",
		conf.Profile, profile.RST, profile.DC, profile.CS, profile.CSS, profile.BUSY)

	pins := epd.Pins{
		RST:  profile.RST,
		DC:   profile.DC,
		CS:   profile.CS,
		CSS:  profile.CSS,
		BUSY: profile.BUSY,
	}
	hw, closer, err := diag.OpenHardware(conf.SPI.Port, conf.SPI.SpeedHz, pins)
	if err != nil {
		appLog.Error("failed to open hardware", err)
		os.Exit(1)
	}
	defer closer()

	probes := []diag.Probe{
		diag.HardwareInfo("/"),
		diag.GPIOConnectivity(hw),
		diag.SPITransfer(hw),
		diag.ResetSequence(hw),
		diag.DualCS(hw),
	}

	results := diag.RunAll(probes)
	for _, r := range results {
		fmt.Printf("--- %s ---\n", r.Name)
		for _, line := range r.Detail {
			fmt.Printf("  %s\n", line)
		}
		if r.Passed {
			fmt.Println("  Result: PASSED")
		} else {
			fmt.Println("  Result: FAILED")
		}
		fmt.Println()
	}

	passed := 0
	for _, r := range results {
		if r.Passed {
			passed++
		}
	}
	fmt.Printf("Summary: %d/%d checks passed\n", passed, len(results))

	if !diag.AllPassed(results) {
		fmt.Println("Check the HAT seating, SPI enablement and pin profile, then re-run.")
		os.Exit(1)
	}
	fmt.Println("All checks passed. If the panel still shows nothing, run epdtest.")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "config.yaml", "Path to config file")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug, info, error")

	flag.Parse()

	return cfg
}
