package main

import "github.com/oshokin/drowsiness-alarm/cmd/drowsiness-monitor/cmd"

func main() {
	cmd.Execute()
}
