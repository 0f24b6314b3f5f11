package main

import (
	"os"

	particlecmder "github.com/saamerm/particle/cmd/particle"
)

func main() {
	cmd := particlecmder.NewParticleCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
