package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	rtconsole "github.com/codewandler/rtconsole-go"
	"github.com/codewandler/rtconsole-go/tools"
	"github.com/gordonklaus/portaudio"
)

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		instruction = "You are a helpful, witty assistant. Speak quickly as if excited."
		proxyURL    = "http://127.0.0.1:8081"
		vad         = false
		debug       = false
	)

	flag.StringVar(&instruction, "instruction", instruction, "instruction to send to the agent")
	flag.StringVar(&proxyURL, "proxy", proxyURL, "scrape/search proxy base URL")
	flag.BoolVar(&vad, "vad", vad, "use server voice activity detection instead of push-to-talk")
	flag.BoolVar(&debug, "debug", debug, "enable debug logs")
	flag.Parse()

	slog.SetLogLoggerLevel(slog.LevelError)
	if debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	must(portaudio.Initialize())
	defer portaudio.Terminate()

	mode := rtconsole.TurnModeNone
	if vad {
		mode = rtconsole.TurnModeServerVAD
	}

	opts := []rtconsole.Option{
		rtconsole.WithDefaultLogger(),
		rtconsole.WithInstruction(instruction),
		rtconsole.WithTurnMode(mode),
	}

	recorder := rtconsole.NewRecorder(MicDevice{}, 200*time.Millisecond, slog.Default())
	player, err := rtconsole.NewPlayer(SpeakerDevice{}, 200*time.Millisecond, slog.Default())
	must(err)

	client := rtconsole.NewClient(opts...)
	session := rtconsole.NewSession(client, recorder, player, opts...)

	must(tools.RegisterAll(session.Registry(), tools.Capabilities{
		Memory:         session.Memory(),
		Display:        session.Display(),
		ProxyURL:       proxyURL,
		ImageAPIKey:    os.Getenv(rtconsole.ApiKeyEnvVarNameLong),
		OnMemoryChange: func() { _ = session.SyncMemory() },
	}))

	must(session.Connect(ctx))
	defer session.Disconnect(context.Background())

	go printTranscript(ctx, session)

	if vad {
		fmt.Println("listening (server vad). press enter to quit.")
		bufio.NewScanner(os.Stdin).Scan()
		return
	}

	fmt.Println("push-to-talk: enter to start a turn, enter again to finish, q to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	talking := false
	for scanner.Scan() {
		if scanner.Text() == "q" {
			return
		}
		if talking {
			must(session.EndTurn())
			fmt.Println("-- thinking --")
		} else {
			must(session.BeginTurn())
			fmt.Println("-- listening --")
		}
		talking = !talking
	}
}

// printTranscript polls the transcript snapshot and prints items as they
// complete.
func printTranscript(ctx context.Context, session *rtconsole.Session) {
	seen := map[string]bool{}
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, item := range session.Items() {
			if seen[item.ID] || item.Status != "completed" {
				continue
			}
			seen[item.ID] = true

			text := item.Formatted.Transcript
			if text == "" {
				text = item.Formatted.Text
			}
			if text == "" {
				continue
			}
			fmt.Printf("%s> %s\n", item.Role, text)
		}
	}
}
