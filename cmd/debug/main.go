package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/thatsimonsguy/thermistor-controller/db"
	"github.com/thatsimonsguy/thermistor-controller/internal/calibration"
	"github.com/thatsimonsguy/thermistor-controller/internal/config"
	"github.com/thatsimonsguy/thermistor-controller/internal/thermistor"
	"github.com/thatsimonsguy/thermistor-controller/internal/units"
	"github.com/thatsimonsguy/thermistor-controller/system/startup"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command, tablePath, policy, configFile, binary string
	var setpoint, volts, seriesOhms, vref float64
	var limit int
	flag.StringVar(&dbPath, "db", "data/thermistor.db", "Path to the SQLite database file")
	flag.StringVar(&command, "cmd", "", "Command to run: set-setpoint, show-readings, check-table, convert, install-services")
	flag.Float64Var(&setpoint, "setpoint", 0, "Setpoint in °F for set-setpoint")
	flag.IntVar(&limit, "limit", 20, "Number of readings for show-readings")
	flag.StringVar(&tablePath, "calibration", "", "Calibration YAML file (built-in table when empty)")
	flag.Float64Var(&volts, "volts", 0, "Measured thermistor voltage for convert")
	flag.Float64Var(&seriesOhms, "rs", 10000, "Series resistor in ohms for convert")
	flag.Float64Var(&vref, "vref", 3.0, "Reference voltage for convert")
	flag.StringVar(&policy, "policy", "interpolated", "Conversion policy for convert: stepped or interpolated")
	flag.StringVar(&configFile, "config-file", "config.json", "Controller config file for install-services")
	flag.StringVar(&binary, "binary", "/usr/local/bin/thermistor-controller", "Controller binary for install-services")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of thermistor-debug:")
		fmt.Println("  -db string\tPath to the SQLite database file (default 'data/thermistor.db')")
		fmt.Println("  -cmd string\tCommand to run: set-setpoint, show-readings, check-table, convert, install-services")
		fmt.Println("  -setpoint float\tSetpoint in °F for set-setpoint")
		fmt.Println("  -limit int\tNumber of readings for show-readings")
		fmt.Println("  -calibration string\tCalibration YAML file for check-table and convert")
		fmt.Println("  -volts float\tMeasured voltage for convert")
		fmt.Println("  -rs float\tSeries resistor in ohms (default 10000)")
		fmt.Println("  -vref float\tReference voltage (default 3.0)")
		fmt.Println("  -policy string\tstepped or interpolated")
		fmt.Println("  -config-file string\tController config file for install-services")
		fmt.Println("  -binary string\tController binary path for install-services")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	var err error
	switch command {
	case "set-setpoint":
		err = db.SetSetpointCLI(dbPath, setpoint)
	case "show-readings":
		err = showReadings(dbPath, limit)
	case "check-table":
		err = checkTable(tablePath)
	case "convert":
		err = convert(tablePath, volts, seriesOhms, vref, policy)
	case "install-services":
		err = installServices(configFile, binary)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", command)
}

func loadTable(path string) (calibration.Table, error) {
	if path == "" {
		return calibration.Default(), nil
	}
	return calibration.LoadFile(path)
}

func showReadings(dbPath string, limit int) error {
	dbConn, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	if sp, ok, err := db.GetSetpoint(dbConn); err != nil {
		return err
	} else if ok {
		fmt.Printf("setpoint: %.1f°F\n", sp)
	}

	readings, err := db.GetRecentReadings(dbConn, limit)
	if err != nil {
		return err
	}
	for _, r := range readings {
		fmt.Printf("%s  raw=%-5d %.4fV %9.1fΩ %6.1f°F  %-17s %-8s %6.1f clamped=%t\n",
			r.TakenAt.Format("2006-01-02 15:04:05"), r.Raw, r.Volts, r.Ohms,
			units.CelsiusToFahrenheit(r.TemperatureC), r.Status, r.Direction, r.Output, r.Clamped)
	}
	return nil
}

func checkTable(path string) error {
	table, err := loadTable(path)
	if err != nil {
		return err
	}
	if err := table.Validate(); err != nil {
		return err
	}

	for i, ohms := range table.ResistanceOhms {
		fmt.Printf("%3d  %6.1f°C  %9.1fΩ\n", i, table.TempAt(i), ohms)
	}
	fmt.Printf("%d entries, %.1f°C to %.1f°C\n", table.Count(), table.LowerLimitC, table.UpperLimitC())
	return nil
}

func convert(path string, volts, seriesOhms, vref float64, policyName string) error {
	table, err := loadTable(path)
	if err != nil {
		return err
	}
	if err := table.Validate(); err != nil {
		return err
	}
	policy, err := thermistor.ParsePolicy(policyName)
	if err != nil {
		return err
	}

	res := thermistor.New(table, seriesOhms, vref, policy).Convert(volts)
	fmt.Printf("%.4fV -> %.1fΩ -> %.2f°C (%.2f°F) status=%s\n", res.Volts, res.Ohms, res.Celsius, res.Fahrenheit(), res.Status)
	return nil
}

func installServices(configFile, binary string) error {
	cfg, err := config.FromFile(configFile)
	if err != nil {
		return err
	}

	if err := startup.WriteStartupScript(cfg); err != nil {
		return fmt.Errorf("failed to write boot script: %w", err)
	}
	if err := startup.InstallStartupService(cfg); err != nil {
		return fmt.Errorf("failed to write boot unit: %w", err)
	}
	if err := startup.InstallControllerService(cfg, binary); err != nil {
		return fmt.Errorf("failed to write controller unit: %w", err)
	}
	if err := startup.RunStartupScript(cfg); err != nil {
		return fmt.Errorf("failed to run boot script: %w", err)
	}

	fmt.Printf("wrote %s, %s and %s\n", cfg.BootScriptPath, cfg.BootServicePath, cfg.MainServicePath)
	return nil
}
