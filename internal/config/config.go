package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

type ADC struct {
	Driver         string `json:"driver"` // sysfs, serial or modbus
	ResolutionBits int    `json:"resolution_bits"`
	TimeoutMillis  int    `json:"timeout_ms"`

	// sysfs (Linux IIO)
	SysfsPath string `json:"sysfs_path"`

	// serial MCU
	SerialPort string `json:"serial_port"`
	BaudRate   int    `json:"baud_rate"`

	// modbus TCP input register
	ModbusAddr     string `json:"modbus_addr"`
	ModbusSlaveID  int    `json:"modbus_slave_id"`
	ModbusRegister int    `json:"modbus_register"`
}

type Actuator struct {
	DirectionPin        *int `json:"direction_pin"`
	DirectionActiveHigh bool `json:"direction_active_high"`
	PWMChip             int  `json:"pwm_chip"`
	PWMChannel          int  `json:"pwm_channel"`
	PWMPeriodNanos      int  `json:"pwm_period_ns"`
}

type Config struct {
	ConfigFile string
	LogLevel   zerolog.Level

	LogFile  string `json:"log_file"`
	DBPath   string `json:"db_path"`
	SafeMode bool   `json:"safe_mode"`

	// sampling
	PollIntervalMillis int     `json:"poll_interval_ms"`
	ControlEnabled     bool    `json:"control_enabled"`
	CalibrationFile    string  `json:"calibration_file"`
	ConversionPolicy   string  `json:"conversion_policy"`
	SeriesResistorOhms float64 `json:"series_resistor_ohms"`
	ReferenceVoltage   float64 `json:"reference_voltage"`
	HistoryLimit       int     `json:"history_limit"`

	// control
	DefaultSetpointF float64  `json:"default_setpoint_f"`
	SetpointMinF     float64  `json:"setpoint_min_f"`
	SetpointMaxF     float64  `json:"setpoint_max_f"`
	PConstant        float64  `json:"p_constant"`
	OutputMin        float64  `json:"output_min"`
	OutputMax        *float64 `json:"output_max"`

	ADC      ADC      `json:"adc"`
	Actuator Actuator `json:"actuator"`

	APIPort int `json:"api_port"`

	// boot-time systemd units
	BootScriptPath  string `json:"boot_script_path"`
	BootServicePath string `json:"boot_service_path"`
	MainServicePath string `json:"main_service_path"`

	// observability
	EnableDatadog bool     `json:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace"`
	DDTags        []string `json:"dd_tags"`
	NtfyTopic     string   `json:"ntfy_topic"`
}

func Load() Config {
	var (
		cfg      Config
		logLevel string
		dbPath   string
	)

	flag.StringVar(&cfg.ConfigFile, "config-file", "config.json", "Path to controller config file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&dbPath, "db", "", "Path to the SQLite database file (overrides db_path)")
	flag.Parse()

	if err := readFile(cfg.ConfigFile, &cfg); err != nil {
		panic(err.Error())
	}

	cfg.LogLevel = parseLogLevel(logLevel)
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	cfg.validate()
	return cfg
}

// FromFile reads a config file without consulting command-line flags. The
// result is not validated.
func FromFile(path string) (Config, error) {
	cfg := Config{ConfigFile: path, LogLevel: zerolog.InfoLevel}
	if err := readFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to load config file: %w", err)
	}
	defer file.Close()

	if err := decode(file, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func decode(r io.Reader, cfg *Config) error {
	// control is on unless the file says otherwise
	cfg.ControlEnabled = true
	if err := json.NewDecoder(r).Decode(cfg); err != nil {
		return err
	}
	cfg.applyDefaults()
	return nil
}

func (cfg *Config) applyDefaults() {
	if cfg.DBPath == "" {
		cfg.DBPath = "data/thermistor.db"
	}
	if cfg.PollIntervalMillis == 0 {
		cfg.PollIntervalMillis = 1000
	}
	if cfg.SeriesResistorOhms == 0 {
		cfg.SeriesResistorOhms = 10000
	}
	if cfg.ReferenceVoltage == 0 {
		cfg.ReferenceVoltage = 3.0
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = 10000
	}
	if cfg.DefaultSetpointF == 0 {
		cfg.DefaultSetpointF = 70
	}
	if cfg.SetpointMinF == 0 && cfg.SetpointMaxF == 0 {
		cfg.SetpointMinF = 40
		cfg.SetpointMaxF = 100
	}
	if cfg.PConstant == 0 {
		cfg.PConstant = 4.0
	}
	if cfg.OutputMax == nil {
		max := 255.0
		cfg.OutputMax = &max
	}
	if cfg.ADC.Driver == "" {
		cfg.ADC.Driver = "sysfs"
	}
	if cfg.ADC.ResolutionBits == 0 {
		cfg.ADC.ResolutionBits = 12
	}
	if cfg.ADC.TimeoutMillis == 0 {
		cfg.ADC.TimeoutMillis = 250
	}
	if cfg.ADC.SysfsPath == "" {
		cfg.ADC.SysfsPath = "/sys/bus/iio/devices/iio:device0/in_voltage0_raw"
	}
	if cfg.ADC.BaudRate == 0 {
		cfg.ADC.BaudRate = 115200
	}
	if cfg.ADC.ModbusSlaveID == 0 {
		cfg.ADC.ModbusSlaveID = 1
	}
	if cfg.Actuator.PWMPeriodNanos == 0 {
		cfg.Actuator.PWMPeriodNanos = 1000000
	}
	if cfg.APIPort == 0 {
		cfg.APIPort = 8080
	}
	if cfg.DDAgentAddr == "" {
		cfg.DDAgentAddr = "127.0.0.1:8125"
	}
	if cfg.DDNamespace == "" {
		cfg.DDNamespace = "thermistor."
	}
	if cfg.BootScriptPath == "" {
		cfg.BootScriptPath = "/usr/local/bin/thermistor-boot.sh"
	}
	if cfg.BootServicePath == "" {
		cfg.BootServicePath = "/etc/systemd/system/thermistor-boot.service"
	}
	if cfg.MainServicePath == "" {
		cfg.MainServicePath = "/etc/systemd/system/thermistor-controller.service"
	}
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() {
	var problems []string

	if cfg.PollIntervalMillis < 0 {
		problems = append(problems, fmt.Sprintf("poll_interval_ms must be positive, got %d", cfg.PollIntervalMillis))
	}
	if cfg.SeriesResistorOhms <= 0 {
		problems = append(problems, fmt.Sprintf("series_resistor_ohms must be positive, got %v", cfg.SeriesResistorOhms))
	}
	if cfg.ReferenceVoltage <= 0 {
		problems = append(problems, fmt.Sprintf("reference_voltage must be positive, got %v", cfg.ReferenceVoltage))
	}
	if cfg.SetpointMinF >= cfg.SetpointMaxF {
		problems = append(problems, fmt.Sprintf("setpoint_min_f (%v) must be below setpoint_max_f (%v)", cfg.SetpointMinF, cfg.SetpointMaxF))
	}
	if cfg.OutputMax != nil && cfg.OutputMin >= *cfg.OutputMax {
		problems = append(problems, fmt.Sprintf("output_min (%v) must be below output_max (%v)", cfg.OutputMin, *cfg.OutputMax))
	}
	switch cfg.ConversionPolicy {
	case "", "stepped", "interpolated":
	default:
		problems = append(problems, fmt.Sprintf("unknown conversion_policy %q", cfg.ConversionPolicy))
	}
	if cfg.ADC.ResolutionBits < 1 || cfg.ADC.ResolutionBits > 16 {
		problems = append(problems, fmt.Sprintf("adc.resolution_bits must be 1-16, got %d", cfg.ADC.ResolutionBits))
	}

	switch cfg.ADC.Driver {
	case "sysfs":
		if cfg.ADC.SysfsPath == "" {
			problems = append(problems, "adc.sysfs_path is required for the sysfs driver")
		}
	case "serial":
		if cfg.ADC.SerialPort == "" {
			problems = append(problems, "adc.serial_port is required for the serial driver")
		}
	case "modbus":
		if cfg.ADC.ModbusAddr == "" {
			problems = append(problems, "adc.modbus_addr is required for the modbus driver")
		}
		if cfg.ADC.ModbusSlaveID < 0 || cfg.ADC.ModbusSlaveID > 247 {
			problems = append(problems, fmt.Sprintf("adc.modbus_slave_id out of range: %d", cfg.ADC.ModbusSlaveID))
		}
		if cfg.ADC.ModbusRegister < 0 || cfg.ADC.ModbusRegister > 0xFFFF {
			problems = append(problems, fmt.Sprintf("adc.modbus_register out of range: %d", cfg.ADC.ModbusRegister))
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown adc.driver %q", cfg.ADC.Driver))
	}

	if cfg.ControlEnabled && cfg.Actuator.DirectionPin == nil {
		problems = append(problems, "actuator.direction_pin is required when control is enabled")
	}

	if len(problems) > 0 {
		panic("Invalid config: " + strings.Join(problems, ", "))
	}
}

func (cfg Config) FullScale() int {
	return 1<<cfg.ADC.ResolutionBits - 1
}
