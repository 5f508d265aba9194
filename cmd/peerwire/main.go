// Command peerwire runs an overlay node over framed peer connections.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
