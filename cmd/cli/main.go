package main

import "github.com/bs1gr/AUT-MIEEK-SMS-sub003/cmd/cli/command"

func main() {
	command.Execute()
}
