package main

import "starminder/cmd"

func main() {
	cmd.Execute()
}
