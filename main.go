package main

import "benirage/cmd"

func main() {
	cmd.Execute()
}
