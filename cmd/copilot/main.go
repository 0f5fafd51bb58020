package main

import "retail-analytics-copilot/internal/cli"

func main() {
	cli.Execute()
}
