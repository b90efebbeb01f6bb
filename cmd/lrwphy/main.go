package main

import "github.com/lorawan-server/lrwphy/cmd/lrwphy/cmd"

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cmd.Execute(version)
}
