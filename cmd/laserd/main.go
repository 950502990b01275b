// Command laserd runs the laser card engraver and its remote interface.
package main

import (
	"log"

	"github.com/tebeka/atexit"
)

func main() {
	log.SetFlags(log.Lshortfile)

	if err := rootCmd.Execute(); err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}
