package main

import "github.com/perchwatch/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}
