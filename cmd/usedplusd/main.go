package main

import "github.com/XelaNull/UsedPlus-sub003/internal/cli"

func main() {
	cli.Execute()
}
