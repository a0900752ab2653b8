// Command issuer opens single-writer sessions on a SQLite store kept on a
// shared folder.
package main

import "github.com/ctenopoma/issuer/internal/cli"

func main() {
	cli.Execute()
}
