package main

import (
	"context"
	"fmt"
)

// version is stamped by the release process; left at "dev" for local
// builds.
var version = "dev"

func cmdversion(ctx context.Context, args []string) error {
	fmt.Println("sbnbd " + version)
	return nil
}
