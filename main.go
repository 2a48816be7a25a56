package main

import "github.com/audiolibrelab/notecapture/cmd"

func main() {
	cmd.Execute()
}
