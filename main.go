package main

import (
	"relstore/cmd"
)

func main() {
	cmd.Execute()
}
