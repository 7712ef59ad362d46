package main

import "github.com/dhcgn/mbox-search/cmd"

func main() {
	cmd.Execute()
}
