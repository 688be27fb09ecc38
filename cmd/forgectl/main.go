package main

import (
	"os"

	"forged/internal/forgectl"
)

func main() {
	os.Exit(forgectl.Run(os.Args[1:]))
}
