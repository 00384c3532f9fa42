package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/relabs-tech/open_ring/internal/sensors"
)

// Config holds all application configuration values. It is loaded once and
// passed by pointer into the components; nothing mutates it after Load.
type Config struct {
	// Identity
	DeviceName string

	// I2C bus
	I2CBus       string // periph bus name/number; empty = match by pins
	I2CSDAPin    string
	I2CSCLPin    string
	I2CClockHz   int64
	BusTxTimeout int // milliseconds

	// IMU
	IMUI2CAddr uint16

	// Timing
	IMUSampleInterval int // milliseconds
	StatusLogInterval int // milliseconds
	LogFrames         bool

	// Transports: comma separated list of "ble", "serial", "mqtt", "websocket"
	Transports []string

	// BLE
	BLEServiceUUID string
	BLECharUUID    string

	// Serial BLE-UART bridge
	SerialPort     string
	SerialBaudRate int

	// MQTT
	MQTTBroker           string
	MQTTClientIDStreamer string
	MQTTClientIDConsole  string
	TopicTelemetry       string

	// Web
	WebServerPort              int
	RegisterDebugPort          int
	RegisterDebugAllowedRanges []sensors.AddrRange

	// Display
	DisplayEnabled        bool
	DisplayUpdateInterval int // milliseconds
}

// Default returns the deployment defaults. Load starts from these.
func Default() *Config {
	return &Config{
		DeviceName: "open-ring",

		I2CSDAPin:    "GPIO2",
		I2CSCLPin:    "GPIO3",
		I2CClockHz:   400_000,
		BusTxTimeout: 1000,

		IMUI2CAddr: sensors.Address,

		IMUSampleInterval: 10,
		StatusLogInterval: 5000,
		LogFrames:         true,

		Transports: []string{"ble"},

		BLEServiceUUID: "0000ffe0-0000-1000-8000-00805f9b34fb",
		BLECharUUID:    "0000ffe4-0000-1000-8000-00805f9b34fb",

		SerialPort:     "/dev/serial0",
		SerialBaudRate: 9600,

		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDStreamer: "open-ring-streamer",
		MQTTClientIDConsole:  "open-ring-console",
		TopicTelemetry:       "open_ring/telemetry",

		WebServerPort:     8080,
		RegisterDebugPort: 8081,
		RegisterDebugAllowedRanges: []sensors.AddrRange{
			{Lo: 0x19, Hi: 0x1D},
			{Lo: 0x6B, Hi: 0x6C},
		},

		DisplayUpdateInterval: 200,
	}
}

// SampleInterval is IMUSampleInterval as a duration.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.IMUSampleInterval) * time.Millisecond
}

// TxTimeout is BusTxTimeout as a duration.
func (c *Config) TxTimeout() time.Duration {
	return time.Duration(c.BusTxTimeout) * time.Millisecond
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	case "DEVICE_NAME":
		c.DeviceName = value

	// I2C
	case "I2C_BUS":
		c.I2CBus = value
	case "I2C_SDA_PIN":
		c.I2CSDAPin = value
	case "I2C_SCL_PIN":
		c.I2CSCLPin = value
	case "I2C_CLOCK_HZ":
		hz, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid I2C_CLOCK_HZ %q: %w", value, err)
		}
		c.I2CClockHz = hz
	case "BUS_TX_TIMEOUT":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid BUS_TX_TIMEOUT %q: %w", value, err)
		}
		c.BusTxTimeout = ms
	case "IMU_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 7)
		if err != nil {
			return fmt.Errorf("invalid IMU_I2C_ADDR %q: %w", value, err)
		}
		c.IMUI2CAddr = uint16(addr)

	// Timing
	case "IMU_SAMPLE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_SAMPLE_INTERVAL %q: %w", value, err)
		}
		c.IMUSampleInterval = interval
	case "STATUS_LOG_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid STATUS_LOG_INTERVAL %q: %w", value, err)
		}
		c.StatusLogInterval = interval
	case "LOG_FRAMES":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid LOG_FRAMES %q: %w", value, err)
		}
		c.LogFrames = b

	// Transports
	case "TRANSPORTS":
		c.Transports = nil
		for _, t := range strings.Split(value, ",") {
			t = strings.ToLower(strings.TrimSpace(t))
			if t != "" {
				c.Transports = append(c.Transports, t)
			}
		}
	case "BLE_SERVICE_UUID":
		c.BLEServiceUUID = value
	case "BLE_CHAR_UUID":
		c.BLECharUUID = value
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_BAUD_RATE %q: %w", value, err)
		}
		c.SerialBaudRate = rate

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_STREAMER":
		c.MQTTClientIDStreamer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "TOPIC_TELEMETRY":
		c.TopicTelemetry = value

	// Web
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port
	case "REGISTER_DEBUG_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid REGISTER_DEBUG_PORT %q: %w", value, err)
		}
		c.RegisterDebugPort = port
	case "REGISTER_DEBUG_ALLOWED_RANGES":
		ranges, err := sensors.ParseRanges(value)
		if err != nil {
			return fmt.Errorf("invalid REGISTER_DEBUG_ALLOWED_RANGES %q: %w", value, err)
		}
		c.RegisterDebugAllowedRanges = ranges

	// Display
	case "DISPLAY_ENABLED":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_ENABLED %q: %w", value, err)
		}
		c.DisplayEnabled = b
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

var knownTransports = map[string]bool{"ble": true, "serial": true, "mqtt": true, "websocket": true}

// validate checks that the values are usable together.
func (c *Config) validate() error {
	if c.DeviceName == "" {
		return fmt.Errorf("DEVICE_NAME is required")
	}
	if c.I2CClockHz <= 0 {
		return fmt.Errorf("I2C_CLOCK_HZ must be positive, got %d", c.I2CClockHz)
	}
	if c.BusTxTimeout <= 0 {
		return fmt.Errorf("BUS_TX_TIMEOUT must be positive, got %d", c.BusTxTimeout)
	}
	if c.IMUSampleInterval <= 0 {
		return fmt.Errorf("IMU_SAMPLE_INTERVAL must be positive, got %d", c.IMUSampleInterval)
	}
	if len(c.Transports) == 0 {
		return fmt.Errorf("TRANSPORTS is required")
	}
	for _, t := range c.Transports {
		if !knownTransports[t] {
			return fmt.Errorf("unknown transport %q", t)
		}
		switch t {
		case "mqtt":
			if c.MQTTBroker == "" || c.TopicTelemetry == "" {
				return fmt.Errorf("MQTT_BROKER and TOPIC_TELEMETRY are required for the mqtt transport")
			}
		case "serial":
			if c.SerialPort == "" || c.SerialBaudRate == 0 {
				return fmt.Errorf("SERIAL_PORT and SERIAL_BAUD_RATE are required for the serial transport")
			}
		}
	}
	if c.DisplayEnabled && c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be positive when the display is enabled")
	}
	return nil
}
