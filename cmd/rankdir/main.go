package main

import "github.com/mcoot/rankdir/internal/cli"

func main() {
	cli.Execute()
}
