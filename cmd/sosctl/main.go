package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/beaverapp/beaver-server-go/internal/client"
	"github.com/beaverapp/beaver-server-go/internal/countdown"
)

const usage = `sosctl - command line client for the beaver alert server

Usage:
  sosctl trigger -server URL -name NAME -contact "NAME:+PHONE" [-contact ...] -pin PIN
  sosctl status -server URL -id SESSION_ID
  sosctl track -server URL -id SESSION_ID
  sosctl deactivate -server URL -id SESSION_ID -pin PIN
`

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "trigger":
		err = runTrigger(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "track":
		err = runTrack(os.Args[2:])
	case "deactivate":
		err = runDeactivate(os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

type contactList []client.ContactInput

func (c *contactList) String() string { return fmt.Sprintf("%v", *c) }

func (c *contactList) Set(value string) error {
	name, phone, ok := strings.Cut(value, ":")
	if !ok {
		return fmt.Errorf("contact must be NAME:+PHONE, got %q", value)
	}
	*c = append(*c, client.ContactInput{Name: name, Phone: phone})
	return nil
}

func runTrigger(args []string) error {
	fs := flag.NewFlagSet("trigger", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "alert server base URL")
	name := fs.String("name", "", "your first name")
	pin := fs.String("pin", "", "4-digit deactivation PIN")
	var contacts contactList
	fs.Var(&contacts, "contact", "emergency contact as NAME:+PHONE (repeatable)")
	fs.Parse(args)

	if *name == "" || *pin == "" || len(contacts) == 0 {
		return fmt.Errorf("-name, -pin and at least one -contact are required")
	}

	ctx := context.Background()

	statePath, err := client.DefaultStorePath()
	if err != nil {
		return err
	}
	store := client.NewStore(statePath)

	rt := client.NewRealtime(wsURL(*server), func(eventType, sessionID string, data json.RawMessage) {
		log.Debug().Str("type", eventType).Str("session_id", sessionID).Msg("event")
	})
	if err := rt.Connect(ctx); err != nil {
		log.Warn().Err(err).Msg("realtime connection failed, continuing without live updates")
	} else {
		defer rt.Close()
	}

	alerter := client.NewAlerter(client.NewAPIClient(*server), store, rt, nil)

	created, err := alerter.TriggerSOS(ctx, *name, contacts, *pin)
	if err != nil {
		return err
	}

	fmt.Printf("Session created: %s\n", created.SessionID)
	fmt.Printf("Tracking link:   %s\n", created.TrackingURL)
	fmt.Printf("Alert fires in %d seconds. Press Enter to cancel.\n", countdown.DefaultSeconds)

	cancelled := make(chan struct{})
	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		close(cancelled)
	}()

	select {
	case <-cancelled:
		alerter.CancelCountdown()
		fmt.Println("Countdown cancelled. Session stays active; deactivate with your PIN when safe.")
	case <-time.After(time.Duration(countdown.DefaultSeconds+2) * time.Second):
		fmt.Println("Countdown elapsed, alerts dispatched to your contacts.")
	}

	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "alert server base URL")
	id := fs.String("id", "", "session id")
	fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("-id is required")
	}

	info, err := client.NewAPIClient(*server).GetSession(context.Background(), *id)
	if err != nil {
		return err
	}

	fmt.Printf("Session:  %s\n", info.SessionID)
	fmt.Printf("Holder:   %s\n", info.UserFirstName)
	fmt.Printf("Status:   %s\n", info.Status)
	if !info.Valid {
		fmt.Printf("Reason:   %s\n", info.Reason)
	}
	fmt.Printf("Expires:  %s\n", time.UnixMilli(info.ExpiresAt).Format(time.RFC3339))
	if info.LastGpsUpdate != nil {
		fmt.Printf("Last fix: %s\n", time.UnixMilli(*info.LastGpsUpdate).Format(time.RFC3339))
	}
	return nil
}

func runTrack(args []string) error {
	fs := flag.NewFlagSet("track", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "alert server base URL")
	id := fs.String("id", "", "session id")
	fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("-id is required")
	}

	track, err := client.NewAPIClient(*server).GetTrack(context.Background(), *id)
	if err != nil {
		return err
	}

	if len(track.Positions) == 0 {
		fmt.Println("No positions recorded yet.")
		return nil
	}
	for _, p := range track.Positions {
		fmt.Printf("%s  lat=%.6f lng=%.6f acc=%.0fm\n",
			time.UnixMilli(p.Timestamp).Format(time.RFC3339), p.Latitude, p.Longitude, p.Accuracy)
	}
	return nil
}

func runDeactivate(args []string) error {
	fs := flag.NewFlagSet("deactivate", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "alert server base URL")
	id := fs.String("id", "", "session id")
	pin := fs.String("pin", "", "4-digit deactivation PIN")
	fs.Parse(args)

	if *id == "" || *pin == "" {
		return fmt.Errorf("-id and -pin are required")
	}

	if err := client.NewAPIClient(*server).Deactivate(context.Background(), *id, *pin); err != nil {
		return err
	}

	statePath, err := client.DefaultStorePath()
	if err == nil {
		client.NewStore(statePath).ClearSession()
	}

	fmt.Println("Session deactivated.")
	return nil
}

func wsURL(server string) string {
	u := strings.Replace(server, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return strings.TrimRight(u, "/") + "/ws"
}
