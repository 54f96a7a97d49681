// Command iris runs the gaze-to-request pipeline without the desktop shell.
package main

import "go.aimuz.me/iris/internal/cmd"

func main() {
	cmd.Execute()
}
