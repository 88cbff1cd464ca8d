// Command sessionctl signs in to an identity backend and keeps the resulting session in encrypted
// storage shared by every sessionctl process using the same settings.
//
// Settings come from flags, SESSIONCTL_* environment variables and ~/.sessionctl.yaml, in that
// order of precedence.
//
//	sessionctl idp --user demo@example.com:demo-password:user,admin &
//	sessionctl login --email demo@example.com --password demo-password
//	sessionctl status
//	sessionctl check /settings
//	sessionctl watch
//	sessionctl logout
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
