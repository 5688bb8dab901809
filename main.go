// Command tip runs the territorial ingestion jobs and the operational reports.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/cli"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/db"
)

func main() {
	err := cli.Execute()
	db.Close()
	if err != nil {
		if !errors.Is(err, cli.ErrUnhealthy) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
