// Command captionminerd runs the captionminer daemon in the foreground. It is
// equivalent to `captionminer run` and suits service managers that expect a
// dedicated binary.
package main

import (
	"context"
	"errors"
	"log"
	"os"

	"captionminer/internal/config"
	"captionminer/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load(os.Getenv("CAPTIONMINER_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{Stdout: true}); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("captionminerd: %v", err)
	}
}
