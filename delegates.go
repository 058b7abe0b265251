package edk

// ProcessDelegate receives notifications about the process.
type ProcessDelegate interface {
	// OnShutdownComplete is called once the shutdown of IPC support is completed.
	OnShutdownComplete()
}

// MasterProcessDelegate receives notifications of the master process.
type MasterProcessDelegate interface {
	ProcessDelegate

	// OnSlaveDisconnect is called once for every slave whose control connection is gone.
	OnSlaveDisconnect(slaveInfo SlaveInfo)
}

// SlaveProcessDelegate receives notifications of the slave process.
type SlaveProcessDelegate interface {
	ProcessDelegate

	// OnMasterDisconnect is called once when the control connection to the master is gone.
	OnMasterDisconnect()
}
