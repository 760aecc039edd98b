// Package interactive provides the interactive command-line console for the
// relay agent.
package interactive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/relaylink-protocol/relaylink-go/pkg/service"
)

// Simulator is the optional simulated-device control surface. Nil when the
// agent runs against a real transport.
type Simulator interface {
	ExpireCredential()
	FailLogins(n int)
}

// Console handles interactive mode for relay-agent.
type Console struct {
	svc *service.DeviceService
	sim Simulator
	rl  *readline.Instance
}

// New creates a console over svc. sim may be nil.
func New(svc *service.DeviceService, sim Simulator) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "relay> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Console{svc: svc, sim: sim, rl: rl}, nil
}

// Run starts the interactive command loop. It returns when the user exits or
// ctx is cancelled.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "read", "r":
			c.cmdRead(ctx)

		case "write", "w":
			c.cmdWrite(ctx, args)

		case "status", "s":
			c.cmdStatus()

		case "refresh":
			c.cmdRefresh(ctx)

		case "expire":
			c.cmdExpire()

		case "fail-login":
			c.cmdFailLogin(args)

		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	help := `
Relay Agent Commands:
  Device:
    read               - Read the device's on/off state
    write on|off       - Set the device's on/off state
    status             - Show session state and credential fingerprint
    refresh            - Force an out-of-band credential refresh

  Simulation (built-in device only):
    expire             - Expire the credential on the simulated device
    fail-login <n>     - Make the next n logins fail

  General:
    help               - Show this help
    quit               - Exit`
	fmt.Fprintln(c.rl.Stdout(), help)
}

func (c *Console) cmdRead(ctx context.Context) {
	start := time.Now()
	value, err := c.svc.ReadState(ctx)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Read failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Device is %s (%.0fms)\n", onOff(value), time.Since(start).Seconds()*1000)
}

func (c *Console) cmdWrite(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: write on|off")
		return
	}

	var on bool
	switch strings.ToLower(args[0]) {
	case "on", "true", "1":
		on = true
	case "off", "false", "0":
		on = false
	default:
		fmt.Fprintf(c.rl.Stdout(), "Invalid state: %s (use on or off)\n", args[0])
		return
	}

	if err := c.svc.WriteState(ctx, on); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Write failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Device switched %s\n", onOff(on))
}

func (c *Console) cmdStatus() {
	fmt.Fprintln(c.rl.Stdout(), "\nAgent Status")
	fmt.Fprintln(c.rl.Stdout(), "-------------------------------------------")
	fmt.Fprintf(c.rl.Stdout(), "  Session:    %s\n", c.svc.SessionState())
	fmt.Fprintf(c.rl.Stdout(), "  Credential: %s\n", c.svc.CredentialFingerprint())
	fmt.Fprintln(c.rl.Stdout())
}

func (c *Console) cmdRefresh(ctx context.Context) {
	if err := c.svc.RefreshCredential(ctx); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Refresh failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Credential refreshed (%s)\n", c.svc.CredentialFingerprint())
}

func (c *Console) cmdExpire() {
	if c.sim == nil {
		fmt.Fprintln(c.rl.Stdout(), "Not running against the simulated device")
		return
	}
	c.sim.ExpireCredential()
	fmt.Fprintln(c.rl.Stdout(), "Credential expired on device")
}

func (c *Console) cmdFailLogin(args []string) {
	if c.sim == nil {
		fmt.Fprintln(c.rl.Stdout(), "Not running against the simulated device")
		return
	}
	n := 1
	if len(args) > 0 {
		if _, err := fmt.Sscanf(args[0], "%d", &n); err != nil || n < 0 {
			fmt.Fprintf(c.rl.Stdout(), "Invalid count: %s\n", args[0])
			return
		}
	}
	c.sim.FailLogins(n)
	fmt.Fprintf(c.rl.Stdout(), "Next %d login(s) will fail\n", n)
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
