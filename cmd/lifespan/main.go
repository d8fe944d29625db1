// Command lifespan runs lifecycle hooks around a process.
package main

import (
	"os"

	"github.com/Iron-Ham/lifespan/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
