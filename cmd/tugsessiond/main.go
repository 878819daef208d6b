// Command tugsessiond runs the classroom trivia Session Engine: one actor
// per live session, serving students and teachers over WebSocket and
// exposing a Control API over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/classroomgames/tugquiz/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tugsessiond:", err)
		os.Exit(1)
	}
}
