// Command tracker-decode turns uplink payloads back into physical values,
// one JSON object per line. Payloads come as hex arguments, or live from the
// Redis uplink channel with -subscribe.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"bike-tracker/internal/packet"
	redisClient "bike-tracker/internal/redis"
)

var version = "dev"

// record is one decoded uplink.
type record struct {
	Payload     string `json:"payload"`
	HasLocation bool   `json:"has_location"`
	packet.Telemetry
}

func decode(payload []byte) (record, error) {
	msg, err := packet.Decode(payload)
	if err != nil {
		return record{}, err
	}
	return record{
		Payload:     hex.EncodeToString(payload),
		HasLocation: msg.HasLocation(),
		Telemetry:   msg.Telemetry(),
	}, nil
}

// decodeArgs writes one line per argument and returns the number of
// payloads that could not be decoded.
func decodeArgs(w io.Writer, logger *log.Logger, args []string) int {
	enc := json.NewEncoder(w)
	failed := 0
	for _, arg := range args {
		payload, err := hex.DecodeString(arg)
		if err != nil {
			logger.Printf("%s: not hex: %v", arg, err)
			failed++
			continue
		}
		rec, err := decode(payload)
		if err != nil {
			logger.Printf("%s: %v", arg, err)
			failed++
			continue
		}
		enc.Encode(rec)
	}
	return failed
}

func main() {
	redisURL := flag.String("redis-url", "redis://127.0.0.1:6379", "Redis URL")
	channel := flag.String("channel", redisClient.DefaultUplinkChannel, "Uplink channel")
	subscribe := flag.Bool("subscribe", false, "Decode uplinks published on the channel until interrupted")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tracker-decode %s\n", version)
		return
	}

	logger := log.New(os.Stderr, "tracker-decode: ", 0)

	if !*subscribe {
		if flag.NArg() == 0 {
			logger.Fatalf("usage: tracker-decode [-subscribe] [hex payload...]")
		}
		if failed := decodeArgs(os.Stdout, logger, flag.Args()); failed > 0 {
			os.Exit(1)
		}
		return
	}

	client, err := redisClient.New(*redisURL, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer client.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	enc := json.NewEncoder(os.Stdout)
	err = client.Uplinks(ctx, *channel, func(payload []byte) {
		rec, err := decode(payload)
		if err != nil {
			logger.Printf("%x: %v", payload, err)
			return
		}
		enc.Encode(rec)
	})
	if err != nil && ctx.Err() == nil {
		logger.Fatalf("%v", err)
	}
}
