package main

import "github.com/MasterHesse/Crab-Cage/cmd"

func main() {
	cmd.Execute()
}
