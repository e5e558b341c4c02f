package main

import "NoteFlow/client/noteflow-cli/cmd"

func main() {
	cmd.Execute()
}
