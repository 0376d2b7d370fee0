// Command gpiotest tries the different GPIO setup approaches for the
// active pin profile and reports which of them can claim the lines.
// It is the first thing to run when epddiag cannot even open the pins.
package main

import (
	"flag"
	"fmt"
	"os"

	"epdiag/internal/config"
	"epdiag/internal/epd"
	"epdiag/internal/gpioprobe"
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

	fmt.Println("GPIO setup test")
	fmt.Println("===============")
	fmt.Printf("Pin profile %q: RST=%d DC=%d CS=%d BUSY=%d\n\n",
		conf.Profile, profile.RST, profile.DC, profile.CS, profile.BUSY)

	pins := epd.Pins{
		RST:  profile.RST,
		DC:   profile.DC,
		CS:   profile.CS,
		CSS:  profile.CSS,
		BUSY: profile.BUSY,
	}

	logf := func(format string, args ...any) {
		fmt.Printf(format+"\n", args...)
	}

	outcomes, anyOK := gpioprobe.RunAll(gpioprobe.Approaches(pins), logf)

	fmt.Println()
	worked := 0
	for _, o := range outcomes {
		if o.Err == nil {
			worked++
		}
	}
	fmt.Printf("Summary: %d/%d approaches worked\n", worked, len(outcomes))

	if !anyOK {
		fmt.Println("No approach could claim the GPIO lines.")
		fmt.Println("Check that the user is in the gpio group and no other process holds the pins.")
		os.Exit(1)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "config.yaml", "Path to config file")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug, info, error")

	flag.Parse()

	return cfg
}
