package main

import "github.com/ivlev/scene2video/internal/cli"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli.Main(version)
}
