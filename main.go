package main

import "github.com/lofcz/minfold/cmd"

func main() {
	cmd.Execute()
}
