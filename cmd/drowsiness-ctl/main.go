package main

import "github.com/oshokin/drowsiness-alarm/cmd/drowsiness-ctl/cmd"

func main() {
	cmd.Execute()
}
