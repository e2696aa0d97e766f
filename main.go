package main

import "github.com/epidemic-sim/epidemic-sim/cmd"

func main() {
	cmd.Execute()
}
