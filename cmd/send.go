package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/swipe-sync/internal/realtime"
	"github.com/spigell/swipe-sync/internal/utils"
)

const flushPollInterval = 50 * time.Millisecond

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a chat message over the realtime connection",
	Run: func(cmd *cobra.Command, _ []string) {
		send(cmd)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().String("chat", "", "chat id to send the message to")
	sendCmd.Flags().StringP("message", "m", "", "message text")
	sendCmd.Flags().Duration("timeout", 30*time.Second, "how long to wait for the message to be flushed")

	sendCmd.MarkFlagRequired("chat")
	sendCmd.MarkFlagRequired("message")
}

func send(cmd *cobra.Command) {
	logger := newLogger()

	chatID, _ := cmd.Flags().GetString("chat")
	message, _ := cmd.Flags().GetString("message")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := bootstrap(ctx, logger)
	if err != nil {
		logger.Fatal("bootstrapping session", zap.Error(err))
	}

	client := newRealtimeClient(env, nil)
	defer client.Disconnect()

	if err := client.Connect(ctx, env.credential.UserID, env.credential.Token); err != nil {
		logger.Fatal("connecting", zap.Error(err))
	}

	// queued until the connection opens, then flushed in order
	if err := client.Send(chatID, message); err != nil {
		logger.Fatal("sending message", zap.Error(err))
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := waitFlushed(waitCtx, client); err != nil {
		logger.Fatal("message was not delivered",
			zap.Error(err),
			zap.String("state", client.State().String()),
			zap.Int("pending", client.Pending()),
		)
	}

	logger.Info("message sent", zap.String("chat_id", chatID))
}

var errOffline = errors.New("connection went offline")

// waitFlushed blocks until the outbox is empty on an open connection.
func waitFlushed(ctx context.Context, client *realtime.Client) error {
	for {
		switch client.State() {
		case realtime.StateOpen:
			if client.Pending() == 0 {
				return nil
			}
		case realtime.StateOffline:
			return errOffline
		}

		if err := utils.WaitFor(ctx, flushPollInterval); err != nil {
			return err
		}
	}
}
