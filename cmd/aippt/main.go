package main

import "github.com/aippt/aippt/cmd"

func main() {
	cmd.Execute()
}
