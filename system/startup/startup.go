package startup

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/thatsimonsguy/thermistor-controller/internal/config"
)

// WriteStartupScript writes a boot script that leaves the actuator at rest
// before the controller starts: direction relay released, PWM duty zero.
func WriteStartupScript(cfg config.Config) error {
	if cfg.BootScriptPath == "" {
		return fmt.Errorf("boot_script_path is not configured")
	}
	return os.WriteFile(cfg.BootScriptPath, []byte(startupScript(cfg)), 0755)
}

func startupScript(cfg config.Config) string {
	var lines []string
	lines = append(lines, "#!/bin/bash", "", "# Thermistor controller actuator state at boot", "")

	if pin := cfg.Actuator.DirectionPin; pin != nil {
		drive := "dh"
		if cfg.Actuator.DirectionActiveHigh {
			drive = "dl"
		}
		lines = append(lines, "# direction relay (released)")
		lines = append(lines, fmt.Sprintf("pinctrl set %d op pn %s", *pin, drive))
		lines = append(lines, "")
	}

	chip := fmt.Sprintf("/sys/class/pwm/pwmchip%d", cfg.Actuator.PWMChip)
	channel := fmt.Sprintf("%s/pwm%d", chip, cfg.Actuator.PWMChannel)
	lines = append(lines, "# pwm drive (zero duty)")
	lines = append(lines, fmt.Sprintf("[ -d %s ] || echo %d > %s/export", channel, cfg.Actuator.PWMChannel, chip))
	lines = append(lines, fmt.Sprintf("echo %d > %s/period", cfg.Actuator.PWMPeriodNanos, channel))
	lines = append(lines, fmt.Sprintf("echo 0 > %s/duty_cycle", channel))
	lines = append(lines, "")

	return strings.Join(lines, "\n") + "\n"
}

func InstallStartupService(cfg config.Config) error {
	unitContents := fmt.Sprintf(`[Unit]
Description=Put thermistor actuator at rest at boot
After=network.target

[Service]
Type=oneshot
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s
RemainAfterExit=true

[Install]
WantedBy=multi-user.target
`, cfg.BootScriptPath)

	return os.WriteFile(cfg.BootServicePath, []byte(unitContents), 0644)
}

// InstallControllerService writes the main unit; it requires the boot unit so
// the actuator is at rest before the first tick.
func InstallControllerService(cfg config.Config, binary string) error {
	bootUnitName := filepath.Base(cfg.BootServicePath)
	configFile, err := filepath.Abs(cfg.ConfigFile)
	if err != nil {
		return err
	}

	unit := fmt.Sprintf(`[Unit]
Description=Thermistor controller
After=%s
Requires=%s

[Service]
Type=simple
WorkingDirectory=%s
ExecStart=%s -config-file %s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, bootUnitName, bootUnitName, filepath.Dir(configFile), binary, configFile)

	return os.WriteFile(cfg.MainServicePath, []byte(unit), 0644)
}

func RunStartupScript(cfg config.Config) error {
	cmd := exec.Command("/bin/bash", cfg.BootScriptPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
