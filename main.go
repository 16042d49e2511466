package main

import "github.com/NahomAnteneh/metarepo/cmd"

func main() {
	cmd.Execute()
}
