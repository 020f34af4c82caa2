// Flowtone CLI entry point
//
// Flowtone streams continuously generated focus music that follows an
// intensity wave over a timed session, pausing when the user leaves their
// allowed focus contexts and resuming when they return.
package main

import "github.com/flowtonehq/flowtone/internal/presentation/cli/commands"

func main() {
	commands.Execute()
}
