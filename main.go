/*
	Copyright 2023 Markus Papenbrock
*/

package main

import "github.com/mpapenbr/selfdriving-car-go/cmd"

func main() {
	cmd.Execute()
}
