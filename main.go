package main

import "CallBox/cmd"

func main() {
	cmd.Execute()
}
