// relayprobe joins a translation session from the command line. It drives the
// same client stack a device uses (connectivity monitor, offline queue, edge
// fallback), which makes it handy for poking at relay behavior: type lines to
// submit them, /offline and /online to simulate connectivity changes.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/lingobridge/backend/internal/client"
	"github.com/lingobridge/backend/internal/connectivity"
	connectivityModel "github.com/lingobridge/backend/internal/model/connectivity"
	"github.com/lingobridge/backend/internal/model/translation"
	"github.com/lingobridge/backend/internal/service/translator"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	server := flag.String("server", "ws://localhost:8080", "relay server base URL")
	sessionID := flag.String("session", "", "session identifier")
	token := flag.String("token", "", "participant credential")
	source := flag.String("source", "en", "source language code")
	target := flag.String("target", "es", "target language code")
	medCtx := flag.String("context", "general", "medical context")
	timeout := flag.Duration("timeout", 15*time.Second, "per-submit timeout")

	flag.Parse()

	if *sessionID == "" || *token == "" {
		flag.Usage()
		log.Fatal("both -session and -token are required")
	}

	monitor := connectivity.NewMonitor()
	defer monitor.Close()

	c := client.New(client.Config{
		ServerURL:      *server,
		SessionID:      *sessionID,
		Credential:     *token,
		SourceLanguage: *source,
		TargetLanguage: *target,
		MedicalContext: *medCtx,
	}, monitor, client.Handlers{
		OnTranslation: func(env translation.Envelope) {
			fmt.Printf("<< [%s] %s  (%s->%s, confidence=%s)\n",
				env.Role, env.TranslatedText, env.SourceLanguage, env.TargetLanguage, env.Confidence)
		},
		OnLocalTranslation: func(ev translation.Event, res translator.Result) {
			fmt.Printf("<< [edge] %s  (queued for replay, confidence=%s, latency=%s)\n",
				res.TranslatedText, res.Confidence, res.Latency)
		},
		OnNotice: func(severity connectivity.Severity, message string) {
			fmt.Printf("!! [%s] %s\n", severity, message)
		},
		OnSessionClosed: func() {
			fmt.Println("!! session closed by the relay")
			os.Exit(0)
		},
	})
	defer c.Close()

	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		log.Fatalf("connect failed: %v", err)
	}

	// Start online on wifi.
	monitor.Update(connectivityModel.RawSignal{
		Connected:         true,
		Transport:         connectivityModel.TransportWifi,
		InternetReachable: true,
	})

	fmt.Println("connected; type text to submit, /offline, /online, /quit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/offline":
			monitor.Update(connectivityModel.RawSignal{Connected: false})
		case line == "/online":
			monitor.Update(connectivityModel.RawSignal{
				Connected:         true,
				Transport:         connectivityModel.TransportWifi,
				InternetReachable: true,
			})
		default:
			submitCtx, cancel := context.WithTimeout(ctx, *timeout)
			if err := c.Submit(submitCtx, line); err != nil {
				log.Printf("submit failed: %v", err)
			}
			cancel()
		}
	}
}
