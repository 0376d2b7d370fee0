package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// PinProfile names the BCM pins wired between the Pi and the panel. The two
// shipped profiles reflect the two HAT revisions this toolkit has been run
// against; scripts used to hardcode one or the other.
type PinProfile struct {
	// RST is the panel reset line.
	RST int `yaml:"rst" json:"rst"`
	// DC selects command (low) or data (high) mode.
	DC int `yaml:"dc" json:"dc"`
	// CS is the chip select. For dual-controller panels this is the
	// master select.
	CS int `yaml:"cs" json:"cs"`
	// CSS is the slave chip select; 0 when the panel has one controller.
	CSS int `yaml:"css,omitempty" json:"css,omitempty"`
	// BUSY is pulled high by the panel while it processes a command.
	BUSY int `yaml:"busy" json:"busy"`
}

// SPIConfig controls how the SPI port is opened.
type SPIConfig struct {
	// Port is the periph.io SPI port name; empty means the first
	// available port (/dev/spidev0.0 on a Pi).
	Port string `yaml:"port" json:"port"`
	// SpeedHz is the bus clock. The HAT+ is specified for 4MHz.
	SpeedHz int64 `yaml:"speed_hz" json:"speed_hz"`
}

// FlagsConfig configures the country-flag sync utility.
type FlagsConfig struct {
	// FlagsDir receives the rendered <id>.bmp files.
	FlagsDir string `yaml:"flags_dir" json:"flags_dir"`
	// InfoDir receives the <id>.json metadata and index.json.
	InfoDir string `yaml:"info_dir" json:"info_dir"`
	// CanvasWidth / CanvasHeight describe the e-ink canvas flags are
	// centered on.
	CanvasWidth  int `yaml:"canvas_width" json:"canvas_width"`
	CanvasHeight int `yaml:"canvas_height" json:"canvas_height"`
	// Cron, when set, makes flagsync re-run on this schedule instead of
	// exiting after one pass.
	Cron string `yaml:"cron,omitempty" json:"cron,omitempty"`
}

// SerialConfig configures the ESP32 serial monitors.
type SerialConfig struct {
	// Port is the serial device path.
	Port string `yaml:"port" json:"port"`
	// Baud is the line rate; the ESP32 firmware logs at 115200.
	Baud int `yaml:"baud" json:"baud"`
}

// Config is the top-level toolkit configuration shared by all commands.
type Config struct {
	// Profile selects the active pin profile by name.
	Profile string `yaml:"profile" json:"profile"`

	// Profiles maps profile names to pin assignments.
	Profiles map[string]PinProfile `yaml:"profiles" json:"profiles"`

	SPI    SPIConfig    `yaml:"spi" json:"spi"`
	Flags  FlagsConfig  `yaml:"flags" json:"flags"`
	Serial SerialConfig `yaml:"serial" json:"serial"`
}

// Built-in pin profiles.
const (
	// ProfileHatPlus is the 13.3" Spectra 6 HAT+ seated on the GPIO
	// header: RST=17 DC=25 CS=8(CE0) BUSY=24.
	ProfileHatPlus = "hatplus"
	// ProfileDual is the dual-controller HAT+ (E) wiring:
	// RST=11 DC=22 CSM=24 CSS=26 BUSY=18.
	ProfileDual = "dual"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Profile: ProfileHatPlus,
		Profiles: map[string]PinProfile{
			ProfileHatPlus: {RST: 17, DC: 25, CS: 8, BUSY: 24},
			ProfileDual:    {RST: 11, DC: 22, CS: 24, CSS: 26, BUSY: 18},
		},
		SPI: SPIConfig{
			Port:    "",
			SpeedHz: 4_000_000,
		},
		Flags: FlagsConfig{
			FlagsDir:     "server/flags",
			InfoDir:      "server/info",
			CanvasWidth:  800,
			CanvasHeight: 480,
		},
		Serial: SerialConfig{
			Port: "/dev/ttyUSB0",
			Baud: 115200,
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Profiles == nil {
		c.Profiles = map[string]PinProfile{}
	}
	for name, p := range def.Profiles {
		if _, ok := c.Profiles[name]; !ok {
			c.Profiles[name] = p
		}
	}
	if c.Profile == "" {
		c.Profile = def.Profile
	}
	if _, ok := c.Profiles[c.Profile]; !ok {
		// Unknown profile name; fall back rather than probe with
		// whatever pins happen to be zero.
		c.Profile = def.Profile
	}

	if c.SPI.SpeedHz <= 0 {
		c.SPI.SpeedHz = def.SPI.SpeedHz
	}

	if c.Flags.FlagsDir == "" {
		c.Flags.FlagsDir = def.Flags.FlagsDir
	}
	if c.Flags.InfoDir == "" {
		c.Flags.InfoDir = def.Flags.InfoDir
	}
	if c.Flags.CanvasWidth <= 0 {
		c.Flags.CanvasWidth = def.Flags.CanvasWidth
	}
	if c.Flags.CanvasHeight <= 0 {
		c.Flags.CanvasHeight = def.Flags.CanvasHeight
	}

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.Baud <= 0 {
		c.Serial.Baud = def.Serial.Baud
	}
}

// ActiveProfile returns the pin profile selected by c.Profile.
func (c *Config) ActiveProfile() (PinProfile, error) {
	p, ok := c.Profiles[c.Profile]
	if !ok {
		return PinProfile{}, fmt.Errorf("config: unknown pin profile %q", c.Profile)
	}
	return p, nil
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written there (parent
// directory created as needed, file mode 0600) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration to path atomically (temp file + rename)
// with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".epdiag-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method that delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
