package main

import "github.com/Ashar20/lifi-rotator/internal/cli"

func main() {
	cli.Execute()
}
