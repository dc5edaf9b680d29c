package main

import "github.com/geocoder89/eventreg/cmd/eventregctl/cmd"

func main() {
	cmd.Execute()
}
