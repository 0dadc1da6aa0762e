package main

import "weather-ready/internal/cli"

func main() {
	cli.Execute()
}
