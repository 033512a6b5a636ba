// Command ctl injects operator commands into the control topic of a
// running blotter.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"tickerplant/internal/pubsub"
	"tickerplant/internal/schema"
)

func main() {
	socketPath := flag.String("socket", "/tmp/tickerplant.sock", "Publisher socket path")
	timeout := flag.Duration("timeout", 5*time.Second, "Send timeout")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		log.Fatalf("usage: ctl [flags] <report|resetrms|stop> [args...]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cmd := schema.Control{Command: args[0], Args: args[1:]}
	if err := pubsub.SendControl(ctx, *socketPath, cmd); err != nil {
		log.Fatalf("send %q failed: %v", cmd.Command, err)
	}
	log.Printf("sent %q", cmd.Command)
}
