package main

import "github.com/jingrm/jing-token-client/cmd/jing-token-client/commands"

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	commands.Execute(commands.BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	})
}
