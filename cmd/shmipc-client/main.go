// File: cmd/shmipc-client/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/momentics/shmipc/client"
)

var args struct {
	SocketPath  string
	MsgType     uint16
	Payload     string
	DialTimeout time.Duration
	RecvTimeout time.Duration
}

var rootCmd = &cobra.Command{
	Use:     "shmipc-client",
	Short:   "Shared-memory IPC client: send one message and print the reply",
	Version: "0.1.0",
	RunE: func(cmd *cobra.Command, cmdArgs []string) error {
		return run()
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&args.SocketPath, "socket", "s", "/tmp/shmipc.sock", "control socket path")
	flags.Uint16VarP(&args.MsgType, "type", "t", 1, "message type")
	flags.StringVarP(&args.Payload, "payload", "p", "", "payload to send")
	flags.DurationVar(&args.DialTimeout, "dial-timeout", 5*time.Second, "handshake dial timeout")
	flags.DurationVar(&args.RecvTimeout, "recv-timeout", 5*time.Second, "reply wait timeout")
}

func run() error {
	ctx, cancel := context.WithTimeout(context.Background(), args.DialTimeout)
	defer cancel()

	cli, err := client.Connect(ctx, client.Options{
		SocketPath:  args.SocketPath,
		DialTimeout: args.DialTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer cli.Close()

	id, err := cli.Send(args.MsgType, []byte(args.Payload), args.DialTimeout)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}

	h, payload, err := cli.Recv(args.RecvTimeout)
	if err != nil {
		return fmt.Errorf("recv: %w", err)
	}
	fmt.Printf("sent correlation_id=%d, got type=%d correlation_id=%d payload=%q\n",
		id, h.Type, h.CorrelationID, string(payload))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
