package main

import "github.com/slidetools/slidestitch/cmd"

func main() {
	cmd.Execute()
}
