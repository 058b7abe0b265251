package main

import (
	"github.com/outofforest/edk/wire"
	"github.com/outofforest/proton"
)

//go:generate go run .
func main() {
	proton.Generate("../types.proton.go",
		proton.Message[wire.Hello](),
		proton.Message[wire.Goodbye](),
		proton.Message[wire.RegisterSlave](),
		proton.Message[wire.RegisterSlaveAck](),
		proton.Message[wire.AllowConnect](),
		proton.Message[wire.AllowConnectAck](),
		proton.Message[wire.CancelConnect](),
		proton.Message[wire.CancelConnectAck](),
		proton.Message[wire.Connect](),
		proton.Message[wire.ConnectAck](),
		proton.Message[wire.EndpointMessage](),
		proton.Message[wire.EndpointClosed](),
		proton.Message[wire.WithdrawConnect](),
	)
}
