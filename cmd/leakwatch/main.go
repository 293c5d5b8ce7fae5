package main

import "github.com/ecovive/leakwatch/internal/cli"

func main() {
	cli.Execute()
}
