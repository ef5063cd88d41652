package main

import (
	"nbp-rate-archive/internal/cli"
)

func main() {
	cli.Execute()
}
