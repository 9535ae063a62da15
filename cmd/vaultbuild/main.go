// vaultbuild builds an Obsidian vault into a static site output directory.
package main

import "github.com/albertocavalcante/vaultbuild/cmd/vaultbuild/internal/cli"

func main() {
	cli.Execute()
}
