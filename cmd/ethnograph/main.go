// Command ethnograph builds the ethnic-groups dataset: it parses the country
// CSVs and narrative dossiers, matches them, and loads the result into a
// relational store.
package main

import "os"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
