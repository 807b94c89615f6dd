package main

import (
	"fmt"
	"os"
)

func main() {
	Execute()
}

func fatal(msg string, err error) {
	fmt.Fprintln(os.Stderr, styleError.Render(fmt.Sprintf("%s: %v", msg, err)))
	os.Exit(1)
}
