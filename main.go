package main

import "os"

func main() {
	if err := newRootCmd(&cli{}).Execute(); err != nil {
		os.Exit(1)
	}
}
