/*
	Copyright 2024 Gridrace contributors
*/

package main

import "github.com/gridrace/race-service-go/cmd"

func main() {
	cmd.Execute()
}
