package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-Checkers/internal/chatlog"
	"github.com/park285/Cheese-Checkers/internal/checkers"
	"github.com/park285/Cheese-Checkers/internal/client"
	appcfg "github.com/park285/Cheese-Checkers/internal/config"
	"github.com/park285/Cheese-Checkers/internal/msgcat"
	"github.com/park285/Cheese-Checkers/internal/obslog"
	"github.com/park285/Cheese-Checkers/internal/statusapi"
)

func main() {
	cfg, err := appcfg.LoadClient()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	server := flag.String("server", cfg.Server, "relay address: host:port, tcp://host:port or ws://host:port/ws")
	lang := flag.String("lang", cfg.Lang, "message language")
	chatFile := flag.String("chat-log", cfg.ChatLogFile, "file that received chat lines are appended to")
	status := flag.Bool("status", false, "print the relay's current match and exit")
	statusURL := flag.String("status-url", cfg.StatusURL, "status API base URL used by -status")
	flag.Parse()

	if err := obslog.InitFromEnv(obslog.Defaults{File: "logs/checkers-client.log", Console: false}); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	cat, err := msgcat.New(*lang, cfg.MessagesDir)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *status {
		if err := printStatus(ctx, *statusURL, cat); err != nil {
			log.Fatalf("status: %v", err)
		}
		return
	}
	if err := play(ctx, *server, *chatFile, cat); err != nil {
		obslog.Sync()
		log.Fatalf("%v", err)
	}
}

func printStatus(ctx context.Context, baseURL string, cat *msgcat.Catalog) error {
	if baseURL == "" {
		return errors.New("set -status-url or CHECKERS_STATUS_URL")
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	m, err := statusapi.NewClient(baseURL).Match(ctx)
	if errors.Is(err, statusapi.ErrNoMatch) {
		fmt.Println(cat.Text("status.no_match", nil, "no match yet"))
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println(cat.Text("client.status", m, m.ID))
	for _, line := range m.Board {
		fmt.Println("  " + line)
	}
	return nil
}

func play(ctx context.Context, server, chatFile string, cat *msgcat.Catalog) error {
	view := newTermView(os.Stdout, cat)
	chat, err := chatlog.Open(chatFile)
	if err != nil {
		return err
	}
	defer func() { _ = chat.Close() }()

	view.print("client.connecting", map[string]any{"Server": server}, "Connecting to "+server)
	c, err := client.Dial(ctx, server, view, chat)
	if err != nil {
		return err
	}
	view.print("client.waiting", nil, "Connected. Waiting for an opponent.")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		close(lines)
	}()

	for {
		select {
		case err := <-runErr:
			if err != nil {
				view.print("client.disconnected", map[string]any{"Reason": err.Error()}, "Connection closed: "+err.Error())
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				cancel()
				return <-runErr
			}
			quit, err := handleCommand(ctx, c, view, line)
			if err != nil {
				obslog.L().Warn("client_command_failed", zap.String("line", line), zap.Error(err))
			}
			if quit {
				cancel()
				return <-runErr
			}
		}
	}
}

func handleCommand(ctx context.Context, c *client.Client, view *termView, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	switch strings.ToLower(fields[0]) {
	case "quit", "exit":
		return true, nil
	case "help":
		view.print("client.help", nil, "move <r,c> <r,c> | click <r,c> | say <text> | board | png <file> | quit")
	case "board":
		return false, c.Redraw(ctx)
	case "say":
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))
		if text == "" {
			break
		}
		return false, c.Say(ctx, text)
	case "click":
		if len(fields) != 2 {
			break
		}
		sq, err := parseSquare(fields[1])
		if err != nil {
			view.Rejected(checkers.Ignored, err)
			return false, nil
		}
		return false, c.Click(ctx, sq)
	case "move", "m":
		if len(fields) != 3 {
			break
		}
		from, err := parseSquare(fields[1])
		if err == nil {
			var to checkers.Square
			if to, err = parseSquare(fields[2]); err == nil {
				return false, c.Move(ctx, from, to)
			}
		}
		view.Rejected(checkers.Ignored, err)
		return false, nil
	case "png":
		if len(fields) != 2 {
			break
		}
		if err := view.savePNG(ctx, fields[1]); err != nil {
			view.print("client.png_failed", map[string]any{"Reason": err.Error()}, "Could not save the board.")
			return false, err
		}
		view.print("client.png_saved", map[string]any{"Path": fields[1]}, "Board saved.")
		return false, nil
	default:
		view.print("client.unknown", map[string]any{"Input": fields[0]}, "Unknown command.")
		return false, nil
	}
	view.print("client.help", nil, "move <r,c> <r,c> | click <r,c> | say <text> | board | png <file> | quit")
	return false, nil
}

// parseSquare reads "row,col" with both in 0..7.
func parseSquare(s string) (checkers.Square, error) {
	r, cstr, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return checkers.Square{}, fmt.Errorf("%w: square %q is not row,col", checkers.ErrIllegalMove, s)
	}
	row, err1 := strconv.Atoi(strings.TrimSpace(r))
	col, err2 := strconv.Atoi(strings.TrimSpace(cstr))
	sq := checkers.Square{Row: row, Col: col}
	if err1 != nil || err2 != nil || !sq.Valid() {
		return checkers.Square{}, fmt.Errorf("%w: square %q is off the board", checkers.ErrIllegalMove, s)
	}
	return sq, nil
}
