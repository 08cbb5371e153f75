// Command clrprobe locates and bootstraps the .NET hosting runtime the same
// way mod_coreclr does, without a running host.
package main

import (
	"os"

	"github.com/corrreia/modcoreclr/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
