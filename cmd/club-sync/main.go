package main

import "github.com/pfrederiksen/club-sync/internal/cli"

func main() {
	cli.Execute()
}
