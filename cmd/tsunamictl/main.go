// Command tsunamictl inspects the event catalog, wave model and severity
// classifier offline, and replays an event headlessly through the station
// monitor.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
