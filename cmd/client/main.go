package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/cbodonnell/tabletop/pkg/client"
	"github.com/cbodonnell/tabletop/pkg/config"
	"github.com/cbodonnell/tabletop/pkg/game/types"
	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/messages"
	"github.com/cbodonnell/tabletop/pkg/network"
	"github.com/cbodonnell/tabletop/pkg/version"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	slot := flag.Int("slot", 0, "Slot to connect to")
	name := flag.String("name", "", "Player name")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}
	log.SetDefaultLogger(log.New(os.Stderr, "client", parsedLogLevel))
	log.Info("Starting client version %s", version.Get())

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}
	if *name == "" {
		*name = fmt.Sprintf("player%d", *slot+1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Waiting for slot %d...\n", *slot)
	c, err := client.Dial(ctx, cfg.Channels.Base(), *slot)
	if err != nil {
		fmt.Println("Error connecting to server:", err)
		os.Exit(1)
	}
	defer c.Close()

	go func() {
		for {
			m, err := c.ReadNotification()
			if err != nil {
				if !network.IsConnectionClosed(err) {
					fmt.Println("Error reading notification:", err)
				}
				return
			}
			fmt.Println("Server:", describe(m))
		}
	}()

	resp, err := c.Join(*name)
	if err != nil {
		fmt.Println("Error joining:", err)
		os.Exit(1)
	}
	fmt.Println("Server:", describe(resp))

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Println("Commands: roll | place <row> <col> <value> | status | quit")
	for {
		select {
		case <-ctx.Done():
			c.Quit()
			return
		case line, ok := <-lines:
			if !ok {
				c.Quit()
				return
			}
			done, err := run(c, strings.Fields(line))
			if err != nil {
				fmt.Println("Error:", err)
				if network.IsConnectionClosed(err) {
					return
				}
			}
			if done {
				return
			}
		}
	}
}

func run(c *client.Client, fields []string) (bool, error) {
	if len(fields) == 0 {
		return false, nil
	}
	var resp *messages.Message
	var err error
	switch fields[0] {
	case "roll", "r":
		resp, err = c.Roll()
	case "place", "p":
		if len(fields) != 4 {
			return false, fmt.Errorf("usage: place <row> <col> <value>")
		}
		nums := make([]int, 3)
		for i, f := range fields[1:] {
			if nums[i], err = strconv.Atoi(f); err != nil {
				return false, fmt.Errorf("invalid number %q", f)
			}
		}
		resp, err = c.Place(nums[0], nums[1], nums[2])
	case "status", "s":
		var snap *types.GameSnapshot
		if snap, err = c.Status(); err == nil {
			fmt.Print(formatState(snap))
		}
		return false, err
	case "quit", "q", "exit":
		return true, c.Quit()
	default:
		return false, fmt.Errorf("unknown command %q", fields[0])
	}
	if err != nil {
		return false, err
	}
	fmt.Println("Server:", describe(resp))
	return false, nil
}

func describe(m *messages.Message) string {
	switch m.Type {
	case messages.MessageTypeJoined:
		p := &messages.Joined{}
		if m.Decode(p) == nil {
			if p.Started {
				return fmt.Sprintf("joined as %s, game started", p.Name)
			}
			return fmt.Sprintf("joined as %s, waiting for %d more", p.Name, p.Missing)
		}
	case messages.MessageTypeYourTurn:
		return "your turn"
	case messages.MessageTypeMoveResult:
		p := &messages.MoveResult{}
		if m.Decode(p) == nil {
			return fmt.Sprintf("%s scored %d (total %d)", p.Outcome.Name, p.Outcome.Gained, p.Outcome.Score)
		}
	case messages.MessageTypeGameOver:
		p := &messages.GameOver{}
		if m.Decode(p) == nil {
			return fmt.Sprintf("game over, %s wins", p.WinnerName)
		}
	case messages.MessageTypeWait:
		p := &messages.Wait{}
		if m.Decode(p) == nil {
			return p.Message
		}
	case messages.MessageTypeError:
		p := &messages.Error{}
		if m.Decode(p) == nil {
			return "error: " + p.Message
		}
	case messages.MessageTypePlayerLeft:
		p := &messages.PlayerLeft{}
		if m.Decode(p) == nil {
			return p.Name + " left"
		}
	case messages.MessageTypeGameStarted:
		return "game started"
	case messages.MessageTypeStateBroadcast:
		p := &messages.StateBroadcast{}
		if m.Decode(p) == nil && p.State != nil {
			return "state changed\n" + formatState(p.State)
		}
	}
	return m.Type
}

func formatState(s *types.GameSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  %s game, %s, turn: %d\n", s.Variant, s.Phase, s.CurrentTurn+1)
	for _, p := range s.Players {
		if !p.Connected() {
			continue
		}
		fmt.Fprintf(&b, "  %d. %-16s %-8s %4d\n", p.Slot+1, p.Name, p.State, p.Score)
	}
	if s.Board != nil {
		for row := 0; row < s.Board.Size; row++ {
			b.WriteString("  ")
			for col := 0; col < s.Board.Size; col++ {
				v := s.Board.Values[row*s.Board.Size+col]
				if v == 0 {
					b.WriteString(". ")
				} else {
					fmt.Fprintf(&b, "%d ", v)
				}
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
