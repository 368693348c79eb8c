package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Host -> device commands.
const (
	CMD_IDENTIFY      = "IDENTIFY"
	CMD_LED_ON        = "LED_ON"
	CMD_LED_OFF       = "LED_OFF"
	CMD_PING          = "PING"
	CMD_RESET_COUNTER = "RESET_COUNTER"
	CMD_GAME_MODE_ON  = "GAME_MODE_ON"
	CMD_GAME_MODE_OFF = "GAME_MODE_OFF"
	CMD_TEST          = "TEST"

	BAUD_RATE       = 115200
	LINE_TERMINATOR = "\n"
	SERVER_PORT     = ":8080"

	// Minimum interval between two logical actions from the same button.
	MIN_COMMAND_INTERVAL = 100 * time.Millisecond
)

const (
	DriverBugst   = "bugst"
	DriverJacobsa = "jacobsa"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Serial   SerialConfig   `yaml:"serial" validate:"required"`
	Scanner  ScannerConfig  `yaml:"scanner"`
	Buttons  []ButtonConfig `yaml:"buttons" validate:"len=4,unique=ID,dive"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Patterns PatternConfig  `yaml:"patterns"`
	Web      WebConfig      `yaml:"web"`
	Log      LogConfig      `yaml:"log"`
}

type SerialConfig struct {
	BaudRate      int           `yaml:"baud_rate" validate:"required,gt=0"`
	Driver        string        `yaml:"driver" validate:"oneof=bugst jacobsa"`
	OpenTimeout   time.Duration `yaml:"open_timeout" validate:"gt=0"`
	IdentifyDelay time.Duration `yaml:"identify_delay" validate:"gte=0"`
}

// ScannerConfig holds the port filter heuristics. A port is a candidate when any of them match.
type ScannerConfig struct {
	VIDs           []string `yaml:"vids"`
	ProductMarkers []string `yaml:"product_markers"`
	PathPatterns   []string `yaml:"path_patterns"`
	IncludeAll     bool     `yaml:"include_all"`
}

type ButtonConfig struct {
	ID       int    `yaml:"id" validate:"min=1,max=4"`
	Color    string `yaml:"color" validate:"required"`
	Position string `yaml:"position"`
	Key      string `yaml:"key"`
}

type BridgeConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MinInterval time.Duration `yaml:"min_interval" validate:"gte=0"`
}

type PatternConfig struct {
	ConfirmFlash time.Duration `yaml:"confirm_flash" validate:"gte=0"`
	CascadeHold  time.Duration `yaml:"cascade_hold" validate:"gte=0"`
	RhythmDuty   float64       `yaml:"rhythm_duty" validate:"gt=0,lte=1"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" validate:"required_if=Enabled true"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn warning error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			BaudRate:      BAUD_RATE,
			Driver:        DriverBugst,
			OpenTimeout:   3 * time.Second,
			IdentifyDelay: 2 * time.Second,
		},
		Scanner: ScannerConfig{
			// Arduino, WCH CH340, Silicon Labs CP210x, FTDI, Espressif, Raspberry Pi
			VIDs:           []string{"2341", "2A03", "1A86", "10C4", "0403", "303A", "2E8A"},
			ProductMarkers: []string{"arduino", "ch340", "cp210", "ft232", "esp32", "pico"},
			PathPatterns:   []string{"usbmodem", "usbserial", "wchusbserial", "ttyACM", "ttyUSB"},
		},
		Buttons: []ButtonConfig{
			{ID: 1, Color: "GREEN", Position: "left", Key: "LEFT"},
			{ID: 2, Color: "RED", Position: "up", Key: "UP"},
			{ID: 3, Color: "BLUE", Position: "down", Key: "DOWN"},
			{ID: 4, Color: "YELLOW", Position: "right", Key: "RIGHT"},
		},
		Bridge: BridgeConfig{
			Enabled:     false,
			MinInterval: MIN_COMMAND_INTERVAL,
		},
		Patterns: PatternConfig{
			ConfirmFlash: 150 * time.Millisecond,
			CascadeHold:  300 * time.Millisecond,
			RhythmDuty:   0.6,
		},
		Web: WebConfig{
			Enabled: true,
			Addr:    SERVER_PORT,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Button returns the settings for button id, if configured.
func (c *Config) Button(id int) (ButtonConfig, bool) {
	for _, b := range c.Buttons {
		if b.ID == id {
			return b, true
		}
	}
	return ButtonConfig{}, false
}
