// Command authctl inspects and drives the local auth session from a
// terminal: restore status, install a credential pair minted by the
// sign-in flow, or wipe the session.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/pocketclub/authcore/internal/app"
	"github.com/pocketclub/authcore/pkg/authsdk"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}
	defer application.Close()

	if err := run(application, os.Args[1:]); err != nil {
		log.Fatalf("authctl: %v", err)
	}
}

func run(application *app.App, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: authctl <status|signin|signout>")
	}

	ctx := context.Background()
	controller := application.Controller()

	switch args[0] {
	case "status":
		snap := controller.Initialize(ctx)
		fmt.Printf("state: %s\n", snap.State)
		if snap.Identity != nil {
			fmt.Printf("identity: %s\n", snap.Identity)
		}
		if snap.Err != "" {
			fmt.Printf("error: %s\n", snap.Err)
		}
		return nil

	case "signin":
		fs := flag.NewFlagSet("signin", flag.ContinueOnError)
		access := fs.String("access", "", "access token from the sign-in flow")
		refresh := fs.String("refresh", "", "refresh token from the sign-in flow")
		identity := fs.String("identity", "{}", "identity record JSON")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *access == "" || *refresh == "" {
			return fmt.Errorf("signin requires -access and -refresh")
		}
		if !json.Valid([]byte(*identity)) {
			return fmt.Errorf("-identity must be valid JSON")
		}

		pair := authsdk.TokenPair{AccessToken: *access, RefreshToken: *refresh}
		return controller.SignIn(ctx, pair, json.RawMessage(*identity))

	case "signout":
		controller.Initialize(ctx)
		controller.SignOut(ctx)
		fmt.Println("signed out")
		return nil

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}
