package main

import "queue-wait-monitor/internal/cli"

func main() {
	cli.Execute()
}
