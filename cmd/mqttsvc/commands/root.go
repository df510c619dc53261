package commands

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srishina/mqttsvc"
	"github.com/srishina/mqttsvc/internal/config"
	"github.com/srishina/mqttsvc/paho"
)

var (
	cfgFile      string
	flagBroker   string
	flagClientID string
	flagRole     string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mqttsvc",
	Short: "MQTT client lifecycle manager",
	Long: `mqttsvc keeps an MQTT connection alive on behalf of a client.

It subscribes to the configured topic filters, replays them after every
reconnect and reports connection and delivery events in its log.`,
	SilenceUsage: true,
}

// Command returns the root cobra command for mounting into a parent CLI.
func Command() *cobra.Command {
	return rootCmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagBroker, "broker", "", "broker URL, overrides the config file")
	rootCmd.PersistentFlags().StringVar(&flagClientID, "client-id", "", "client id, overrides the config file")
	rootCmd.PersistentFlags().StringVar(&flagRole, "role", "", "connection role: publisher, subscriber or pubsub")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(publishCmd)
}

// loadConfig reads the config file and applies the command-line overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if flagBroker != "" {
		cfg.Broker.Brokers = []string{flagBroker}
	}
	if flagClientID != "" {
		cfg.Client.ID = flagClientID
	}
	if flagRole != "" {
		if err := cfg.Client.Role.UnmarshalText([]byte(flagRole)); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating flags: %w", err)
	}
	return cfg, nil
}

// newClient wires the paho transport, the reconnect policy and the event
// log into a client
func newClient(cfg *config.Config, logger *log.Logger, opts ...mqttsvc.ClientOption) (*mqttsvc.Client, error) {
	paho.RouteLogs(logger)

	transport, err := paho.New(cfg.Client.ID, cfg.Broker, logger)
	if err != nil {
		return nil, fmt.Errorf("creating transport: %w", err)
	}

	opts = append([]mqttsvc.ClientOption{
		mqttsvc.WithConfig(cfg.Service),
		mqttsvc.WithLogger(logger),
	}, opts...)
	if cfg.Reconnect.Enabled {
		policy := mqttsvc.NewBackoffPolicy(cfg.Reconnect.InitialDelay, cfg.Reconnect.MaxDelay)
		opts = append(opts, mqttsvc.WithReconnectPolicy(policy, mqttsvc.TimerScheduler{}))
	}

	client, err := mqttsvc.NewClient(cfg.Identity(), transport, opts...)
	if err != nil {
		transport.Close()
		return nil, err
	}
	return client, nil
}

// logEvents returns an observer writing client events to the logger
func logEvents(logger *log.Logger) mqttsvc.Observer {
	return mqttsvc.ObserverFunc(func(e mqttsvc.Event) {
		entry := logger.WithFields(log.Fields{"event": e.EventName(), "client_id": e.EventClientID()})
		switch ev := e.(type) {
		case mqttsvc.ConnectedEvent:
			entry.WithFields(log.Fields{"server": ev.ServerURI, "topics": ev.SubscribedTopics}).Info("Connected")
		case mqttsvc.DisconnectedEvent:
			entry.Info("Disconnected")
		case mqttsvc.ConnectionLostEvent:
			entry.WithError(ev.Err).WithField("auto_reconnect", ev.AutoReconnect).Warn("Connection lost")
		case mqttsvc.ConnectionFailureEvent:
			entry.WithError(ev.Err).WithField("auto_reconnect", ev.AutoReconnect).Warn("Connection failed")
		case mqttsvc.MessagePublishedEvent:
			entry.WithFields(log.Fields{"message_id": ev.MessageID, "correlation_id": ev.CorrelationID}).Debug("Message published")
		case mqttsvc.MessageDeliveredEvent:
			entry.WithField("message_id", ev.MessageID).Debug("Message delivered")
		case mqttsvc.PublishFailureEvent:
			entry.WithError(ev.Err).Error("Publish failed")
		}
	})
}
