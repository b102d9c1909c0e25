package main

import "github.com/notargets/gofac/cmd"

func main() {
	cmd.Execute()
}
