package main

import "github.com/cbergmann/permafrost/cmd"

func main() {
	cmd.Execute()
}
