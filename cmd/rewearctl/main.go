package main

import "github.com/rajivgeraev/rewear-api/cmd/rewearctl/commands"

func main() {
	commands.Execute()
}
