package shutdown

import (
	"os"

	"github.com/rs/zerolog/log"
)

// ExitFunc is swapped in tests.
var ExitFunc = os.Exit

// Actuator is anything that can be put at rest before exit.
type Actuator interface {
	Off() error
}

// Shutdown releases the actuator and exits the process.
func Shutdown(act Actuator, code int) {
	if act != nil {
		if err := act.Off(); err != nil {
			log.Error().Err(err).Msg("Failed to release actuator during shutdown")
			code = 1
		} else {
			log.Info().Msg("Actuator released")
		}
	}
	ExitFunc(code)
}

func ShutdownWithError(act Actuator, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	Shutdown(act, 1)
}
