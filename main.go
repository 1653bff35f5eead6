package main

import "github.com/chatvault/chatvault/internal/cli"

func main() {
	cli.Execute()
}
