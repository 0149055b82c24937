package main

import "github.com/rhavekost/dicomweb-oauth-broker/cmd"

// Version can be set during build with -ldflags
var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
