package main

import "term-forge/internal/cli"

func main() {
	cli.Execute()
}
