package main

import "github.com/narevent/REA/cmd"

func main() {
	cmd.Execute()
}
