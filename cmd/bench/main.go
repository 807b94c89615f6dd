package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/aretw0/shelf"
	"github.com/aretw0/shelf/pkg/agent"
	"github.com/aretw0/shelf/pkg/core"
	"github.com/aretw0/shelf/pkg/hub"
)

// bench measures broadcast fan-out: one publisher adds items while every
// other client waits until its copy of the shelf holds all of them.
func main() {
	clients := flag.Int("clients", 50, "Number of subscribed clients")
	updates := flag.Int("updates", 200, "Number of items the publisher adds")
	keep := flag.Bool("keep", false, "Keep the benchmark data dir after running")
	flag.Parse()

	benchDir, err := os.MkdirTemp("", "shelf_bench_")
	if err != nil {
		panic(err)
	}
	defer func() {
		if !*keep {
			os.RemoveAll(benchDir)
		} else {
			fmt.Printf("Keeping bench dir: %s\n", benchDir)
		}
	}()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := shelf.NewServer(ctx, benchDir,
		shelf.WithLogger(logger),
		shelf.WithMinUpdateInterval(time.Millisecond),
		shelf.WithSendBuffer(*updates+16),
	)
	if err != nil {
		panic(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(err)
	}
	go server.Serve(ctx, ln)
	url := "ws://" + ln.Addr().String() + "/ws"

	newAgent := func() *agent.Agent {
		c, err := shelf.NewClient(ctx, url, benchDir,
			shelf.WithLogger(logger),
			shelf.WithCache(agent.NewMemoryCache()),
			shelf.WithCooldown(5*time.Millisecond),
		)
		if err != nil {
			panic(err)
		}
		return c.Agent
	}

	fmt.Printf("Connecting %d clients...\n", *clients)
	startConnect := time.Now()
	var ready, converged sync.WaitGroup
	for i := 0; i < *clients; i++ {
		a := newAgent()
		ready.Add(1)
		converged.Add(1)
		go func() {
			defer converged.Done()
			connected := false
			for e := range a.Events() {
				if e.Kind != agent.EventStateUpdate {
					continue
				}
				if !connected {
					connected = true
					ready.Done()
				}
				if len(e.Document.Items) == *updates {
					return
				}
			}
		}()
		if err := a.Start(ctx); err != nil {
			panic(err)
		}
	}
	ready.Wait()
	fmt.Printf("Connect took: %v\n", time.Since(startConnect))

	publisher := newAgent()
	if err := publisher.Start(ctx); err != nil {
		panic(err)
	}

	fmt.Printf("Publishing %d updates...\n", *updates)
	startPublish := time.Now()
	doc := core.Empty()
	for i := 0; i < *updates; i++ {
		doc = core.AddItem(doc, core.Item{
			ID:    fmt.Sprintf("item-%d", i),
			Title: fmt.Sprintf("Item %d", i),
			Icon:  core.IconBook,
		})
		if err := publisher.UpdateState(doc); err != nil {
			panic(err)
		}
	}
	done := make(chan struct{})
	go func() {
		converged.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Minute):
		fmt.Println("Clients did not converge within a minute")
		os.Exit(1)
	}
	elapsed := time.Since(startPublish)

	fmt.Printf("Convergence took: %v\n", elapsed)
	fmt.Printf("Per update: %v\n", elapsed/time.Duration(*updates))
	if stats, ok := server.Hub.State().(hub.Stats); ok {
		fmt.Printf("Hub: accepted=%d rate_limited=%d deliveries=%d slow_drops=%d\n",
			stats.Accepted, stats.RateLimited, stats.Deliveries, stats.SlowDrops)
	}
}
