package main

import "github.com/ghyeongl/warehouse/cmd"

func main() {
	cmd.Execute()
}
