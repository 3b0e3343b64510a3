package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/junbin-yang/steamcm/internal/config"
	"github.com/junbin-yang/steamcm/internal/logger"
	"github.com/junbin-yang/steamcm/internal/schema"
	"github.com/junbin-yang/steamcm/internal/serverdir"
	"github.com/junbin-yang/steamcm/pkg/cmclient"
)

// CLI is an interactive shell over one cmclient.Client.
type CLI struct {
	client *cmclient.Client
	dir    *serverdir.Directory
}

func NewCLI(cfg *config.Config) *CLI {
	endpoints := make([]serverdir.Endpoint, 0, len(cfg.Bootstrap))
	for _, ep := range cfg.Bootstrap {
		endpoints = append(endpoints, serverdir.Endpoint{Host: ep.Host, Port: ep.Port})
	}
	dir := serverdir.New(endpoints)

	c := &CLI{dir: dir}
	c.client = cmclient.NewClient(dir,
		cmclient.WithOnDebug(func(msg string) { logger.Debug(msg) }),
		cmclient.WithOnConnected(c.onConnected),
		cmclient.WithOnMessage(c.onMessage),
		cmclient.WithOnServers(c.onServers),
		cmclient.WithOnLogOnResponse(c.onLogOnResponse),
		cmclient.WithOnLoggedOff(c.onLoggedOff),
		cmclient.WithOnError(c.onError),
		cmclient.WithConnectTimeout(time.Duration(cfg.ConnectTimeoutSeconds)*time.Second),
		cmclient.WithIdleTimeout(time.Duration(cfg.IdleTimeoutSeconds)*time.Second),
	)
	return c
}

func (c *CLI) onConnected() {
	logger.Info("cmclient: channel encrypted")
	fmt.Println(">>> connected <<<")
}

func (c *CLI) onMessage(h cmclient.Header, body []byte, reply cmclient.ReplyFunc) {
	logger.Infof("cmclient: message emsg=%d bytes=%d", h.Msg, len(body))
}

func (c *CLI) onServers(list []serverdir.Endpoint) {
	logger.Infof("cmclient: refreshed bootstrap list, %d servers", len(list))
	fmt.Printf(">>> server list refreshed: %d entries <<<\n", len(list))
}

func (c *CLI) onLogOnResponse(resp *schema.MsgClientLogOnResponse) {
	logger.Infof("cmclient: log on response eresult=%d heartbeat=%ds", resp.EResult, resp.OutOfGameHeartbeatSeconds)
	fmt.Printf(">>> log on response: eresult=%d <<<\n", resp.EResult)
}

func (c *CLI) onLoggedOff(eresult int32) {
	logger.Warnf("cmclient: logged off eresult=%d", eresult)
	fmt.Printf(">>> logged off: eresult=%d <<<\n", eresult)
}

func (c *CLI) onError(err error) {
	logger.Errorf("cmclient: %v", err)
	fmt.Printf("error: %v\n", err)
}

func (c *CLI) Shutdown() {
	logger.Info("cmclient-cli: shutting down")
	c.client.Disconnect()
	c.client.Close()
}

func (c *CLI) printHelp() {
	fmt.Println("commands:")
	fmt.Println("  connect [host:port]   connect to a CM node (random bootstrap entry if omitted)")
	fmt.Println("  disconnect            tear down the current connection")
	fmt.Println("  servers               list the current bootstrap directory")
	fmt.Println("  help                  show this text")
	fmt.Println("  quit                  exit")
}

func (c *CLI) InteractiveMode() {
	fmt.Println("===========================================")
	fmt.Println("    cm protocol client (interactive mode)")
	fmt.Println("===========================================")
	fmt.Println("\ntype 'help' for available commands")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\nsteamcm> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		cmd := parts[0]

		switch cmd {
		case "help", "h":
			c.printHelp()

		case "connect":
			var ep *serverdir.Endpoint
			if len(parts) > 1 {
				host, portStr, ok := strings.Cut(parts[1], ":")
				if !ok {
					fmt.Println("usage: connect <host:port>")
					continue
				}
				port, err := strconv.Atoi(portStr)
				if err != nil {
					fmt.Printf("bad port: %v\n", err)
					continue
				}
				ep = &serverdir.Endpoint{Host: host, Port: uint16(port)}
			}
			c.client.Connect(ep, true)

		case "disconnect":
			c.client.Disconnect()

		case "servers":
			for _, ep := range c.dir.Snapshot() {
				fmt.Printf("  %s:%d\n", ep.Host, ep.Port)
			}

		case "quit", "exit", "q":
			return

		default:
			fmt.Printf("unknown command: %s\n", cmd)
		}
	}
}

func main() {
	cfg := config.Parse()

	cli := NewCLI(cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nreceived interrupt, shutting down...")
		cli.Shutdown()
		os.Exit(0)
	}()
	defer cli.Shutdown()

	cli.InteractiveMode()
}
