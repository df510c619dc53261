package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srishina/mqttsvc"
)

var flagTopics []string

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect and log incoming messages",
	Long: `Connect to the broker, subscribe to the configured topic filters and
log every message received until interrupted.

When reconnect is enabled, failed and lost connections are retried with
exponential backoff and the subscriptions are replayed on every reconnect.`,
	RunE: runService,
}

func init() {
	runCmd.Flags().StringSliceVarP(&flagTopics, "topic", "t", nil, "additional topic filter to subscribe to")
}

func logMessages(logger *log.Logger) mqttsvc.MessageHandler {
	return mqttsvc.MessageHandlerFunc(func(msg mqttsvc.Message) error {
		logger.WithFields(log.Fields{
			"topic":    msg.Topic,
			"qos":      msg.QoS.Level(),
			"retained": msg.Retained,
			"bytes":    len(msg.Payload),
		}).Info(string(msg.Payload))
		return nil
	})
}

func runService(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()

	if !cfg.Client.Role.CanReceive() {
		return fmt.Errorf("role %s cannot receive messages, use the publish command", cfg.Client.Role)
	}

	router := mqttsvc.NewRouter(logMessages(logger))
	client, err := newClient(cfg, logger,
		mqttsvc.WithObserver(logEvents(logger)),
		mqttsvc.WithMessageHandler(router),
	)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, s := range cfg.Subscriptions {
		if err := client.SubscribeQoS(ctx, s.Topic, s.QoS); err != nil {
			return err
		}
	}
	for _, topic := range flagTopics {
		if err := client.Subscribe(ctx, topic); err != nil {
			return err
		}
	}

	if !client.Start(ctx) && !cfg.Reconnect.Enabled {
		return fmt.Errorf("could not connect to %v", cfg.Broker.Brokers)
	}
	logger.WithField("client_id", cfg.Client.ID).Info("Running, press Ctrl+C to exit")

	<-ctx.Done()
	logger.Info("Shutting down")
	client.Stop()
	return nil
}
