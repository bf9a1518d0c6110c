package main

import "example.com/hdtickets/services/discovery/cmd"

func main() {
	cmd.Execute()
}
