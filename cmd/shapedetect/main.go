package main

import "github.com/MeKo-Tech/shapedetect/cmd/shapedetect/cmd"

func main() {
	cmd.Execute()
}
