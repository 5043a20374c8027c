package main

import "github.com/AetherKnowledge/capstone/cmd/relay-client/cmd"

func main() {
	cmd.Execute()
}
