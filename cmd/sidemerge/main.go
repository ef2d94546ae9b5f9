package main

import "github.com/sidemerge/sidemerge/cmd/sidemerge/cmd"

func main() {
	cmd.Execute()
}
