package db

func SetSetpointCLI(dbPath string, setpoint float64) error {
	dbConn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	return UpdateSetpoint(dbConn, setpoint)
}
