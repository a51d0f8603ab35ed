package main

import "github.com/kyleking/gh-actionboard/cmd"

func main() {
	cmd.Execute()
}
