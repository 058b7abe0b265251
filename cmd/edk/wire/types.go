package wire

// Ping is sent by master to the slave.
type Ping struct {
	Seq   uint64
	Slave string
}

// Pong is the reply of the slave to Ping.
type Pong struct {
	Seq       uint64
	ProcessID uint64
}
