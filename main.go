package main

import "github.com/nextlevelbuilder/taskpulse/cmd"

func main() {
	cmd.Execute()
}
