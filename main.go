package main

import "hitomidl/cmd"

func main() {
	cmd.Execute()
}
