package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lostfound/chatsync/internal/daemon"
	"github.com/lostfound/chatsync/internal/profile"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	name, err := profile.Resolve(*profileFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Profile: name, Program: "chatsyncd", Console: true}),
	)
	app.Run()
}
