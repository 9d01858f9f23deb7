package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/prograhamer/go-anthostd/internal/antmetrics"
	"github.com/prograhamer/go-anthostd/internal/antnode"
	"github.com/prograhamer/go-anthostd/internal/antsearch"
)

// searchFoundBuf sizes the Found channel of any search processor a console
// "search" command allocates.
const searchFoundBuf = 32

// runConsole drives a small interactive debug shell over stdin/stdout: list
// channels, show the decode/resync counters, and close a channel by number.
// It returns when the user quits or ctx is cancelled.
func runConsole(ctx context.Context, node *antnode.Node) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "ant> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("console: %w", err)
	}
	defer func() { _ = rl.Close() }()

	go func() {
		<-ctx.Done()
		_ = rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if err := handleConsoleCommand(ctx, node, rl, strings.TrimSpace(line)); err != nil {
			if err == io.EOF {
				return nil
			}
			fmt.Fprintln(rl.Stdout(), "error:", err)
		}
	}
}

func handleConsoleCommand(ctx context.Context, node *antnode.Node, rl *readline.Instance, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	out := rl.Stdout()
	switch fields[0] {
	case "help":
		fmt.Fprintln(out, "commands: channels, metrics, caps, search, close <channel>, quit")

	case "channels":
		for _, snap := range node.Channels() {
			fmt.Fprintf(out, "channel %d: %s events=%v\n", snap.Channel, snap.Status, snap.Events)
		}

	case "metrics":
		s := antmetrics.Snap()
		fmt.Fprintf(out, "frames=%d discarded=%d resyncs=%d malformed=%d errors=%d\n",
			s.FramesDecoded, s.DiscardedBytes, s.Resyncs, s.MalformedFrames, s.Errors)

	case "caps":
		caps, err := node.CachedCapabilities()
		if err != nil {
			caps, err = node.Capabilities(ctx)
			if err != nil {
				return err
			}
		}
		fmt.Fprintf(out, "max_channels=%d max_networks=%d ext_assignment=%v ext_messages=%v\n",
			caps.MaxChannels, caps.MaxNetworks, caps.ExtendedAssignmentEnabled, caps.ExtendedMessageEnabled)

	case "search":
		proc := antsearch.New(searchFoundBuf)
		channel, err := node.AssignSearchChannel(ctx, defaultNetworkNumber, proc, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "search channel %d opened, discoveries will print as they arrive\n", channel)
		go func() {
			for {
				select {
				case id, ok := <-proc.Found:
					if !ok {
						return
					}
					fmt.Fprintf(out, "discovered device=%d type=%d transmission=%d\n",
						id.DeviceNumber, id.DeviceType, id.TransmissionType)
				case <-ctx.Done():
					return
				}
			}
		}()

	case "close":
		if len(fields) != 2 {
			return fmt.Errorf("usage: close <channel>")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 0 || n > 255 {
			return fmt.Errorf("invalid channel: %s", fields[1])
		}
		if err := node.CloseChannel(ctx, byte(n)); err != nil {
			return err
		}
		fmt.Fprintf(out, "channel %d closed\n", n)

	case "quit", "exit":
		return io.EOF

	default:
		return fmt.Errorf("unknown command: %s", fields[0])
	}
	return nil
}
