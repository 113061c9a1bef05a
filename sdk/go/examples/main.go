// Command examples connects to a running walletd and prints every session
// snapshot it pushes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"walletlink/sdk/go/walletlink"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8645", "walletd base URL")
	token := flag.String("token", os.Getenv("WALLETLINK_TOKEN"), "API bearer token")
	connect := flag.Bool("connect", false, "ask the wallet to connect before watching")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client, err := walletlink.NewClient(*addr, nil)
	if err != nil {
		log.Fatal(err)
	}
	client.SetAccessToken(*token)

	networks, err := client.Networks(ctx)
	if err != nil {
		log.Fatalf("list networks: %v", err)
	}
	for _, n := range networks {
		fmt.Printf("network %-10s %d registered=%t\n", n.Label, n.ChainID, n.Registered)
	}

	stream, err := client.OpenStream(ctx)
	if err != nil {
		log.Fatalf("open stream: %v", err)
	}
	go func() {
		<-ctx.Done()
		_ = stream.Close()
	}()
	if *connect {
		if err := stream.Connect(); err != nil {
			log.Fatalf("connect: %v", err)
		}
	}

	for {
		frame, err := stream.Next()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("stream ended: %v", err)
			}
			return
		}
		switch {
		case frame.Session != nil:
			s := frame.Session
			fmt.Printf("session account=%q chain=%d (%s) connected=%t loading=%t\n",
				s.Account, s.ChainID, s.ChainLabel, s.IsConnected, s.IsLoading)
		case frame.Error != nil:
			fmt.Printf("%s failed: %s\n", frame.Op, frame.Error.Message)
		default:
			fmt.Printf("%s accepted\n", frame.Op)
		}
	}
}
