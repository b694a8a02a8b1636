package main

import "civitdl/cmd/civitdl/cmd"

func main() {
	cmd.Execute()
}
