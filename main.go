package main

import "github.com/jcdickinson/docref/cmd"

func main() {
	cmd.Execute()
}
