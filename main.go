package main

import "github.com/taein2026/AItest/cmd"

func main() {
	cmd.Execute()
}
