package main

import (
	"mircrewapi/cmd/mircrew-cli/commands"
	"mircrewapi/pkg/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
