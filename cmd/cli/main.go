package main

import (
	"github.com/mchmarny/evalcheck/pkg/cli"
)

func main() {
	cli.Execute()
}
