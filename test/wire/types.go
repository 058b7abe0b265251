package wire

// Ping is sent by the side starting an exchange.
type Ping struct {
	Seq  uint64
	Text string
}

// Pong answers Ping.
type Pong struct {
	Seq  uint64
	Text string
}
