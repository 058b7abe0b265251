package main

import (
	"github.com/outofforest/edk/cmd/edk/wire"
	"github.com/outofforest/proton"
)

//go:generate go run .
func main() {
	proton.Generate("../types.proton.go",
		proton.Message[wire.Ping](),
		proton.Message[wire.Pong](),
	)
}
