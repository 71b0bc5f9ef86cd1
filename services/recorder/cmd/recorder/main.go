package main

import "casedoc/services/recorder/internal/cli"

func main() {
	cli.Execute()
}
