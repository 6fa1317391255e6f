package main

import "lab-registration/cmd"

func main() {
	cmd.Execute()
}
