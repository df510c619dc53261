package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srishina/mqttsvc"
)

var (
	flagQoS     int
	flagRetain  bool
	flagTimeout time.Duration
)

// publishCmd represents the publish command
var publishCmd = &cobra.Command{
	Use:   "publish <topic> <payload>",
	Short: "Publish a message",
	Long: `Connect to the broker, publish a single message and wait until the
broker acknowledged it.

Example:
  mqttsvc publish --qos 1 devices/lamp/set '{"on":true}'`,
	Args: cobra.ExactArgs(2),
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().IntVarP(&flagQoS, "qos", "q", -1, "QoS level, the configured default when omitted")
	publishCmd.Flags().BoolVarP(&flagRetain, "retain", "r", false, "ask the broker to retain the message")
	publishCmd.Flags().DurationVar(&flagTimeout, "timeout", 30*time.Second, "time to wait for the delivery")
}

func runPublish(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()

	if !cfg.Client.Role.CanPublish() {
		return fmt.Errorf("role %s cannot publish", cfg.Client.Role)
	}

	req := mqttsvc.PublishRequest{
		Topic:         args[0],
		Payload:       []byte(args[1]),
		CorrelationID: uuid.NewString(),
	}
	if flagQoS >= 0 {
		qos := mqttsvc.QoS(flagQoS)
		req.QoS = &qos
	}
	if flagRetain {
		req.Retained = &flagRetain
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
	defer cancel()

	events := make(chan mqttsvc.Event, 16)
	done := make(chan struct{})

	// reconnect makes no sense for a single message
	cfg.Reconnect.Enabled = false
	client, err := newClient(cfg, logger, mqttsvc.WithObserver(forwardEvents(ctx, events, done, logEvents(logger))))
	if err != nil {
		return err
	}
	defer client.Close()
	// nobody reads events once the delivery wait is over
	defer close(done)

	if !client.Start(ctx) {
		return fmt.Errorf("could not connect to %v", cfg.Broker.Brokers)
	}

	if err := client.Publish(ctx, req); err != nil {
		return err
	}
	return awaitDelivery(ctx, events, req.CorrelationID, logger)
}

// forwardEvents passes every event to next and then to events. The send
// blocks until the event is taken, done is closed or ctx ends.
func forwardEvents(ctx context.Context, events chan<- mqttsvc.Event, done <-chan struct{}, next mqttsvc.Observer) mqttsvc.Observer {
	return mqttsvc.ObserverFunc(func(e mqttsvc.Event) {
		next.OnEvent(e)
		select {
		case events <- e:
		case <-done:
		case <-ctx.Done():
		}
	})
}

// awaitDelivery waits for the delivered event matching the message id that
// was reported for correlationID
func awaitDelivery(ctx context.Context, events <-chan mqttsvc.Event, correlationID string, logger *log.Logger) error {
	var (
		id        uint16
		published bool
	)
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for delivery: %w", ctx.Err())
		case e := <-events:
			switch ev := e.(type) {
			case mqttsvc.MessagePublishedEvent:
				if ev.CorrelationID == correlationID {
					id, published = ev.MessageID, true
				}
			case mqttsvc.MessageDeliveredEvent:
				if published && ev.MessageID == id {
					logger.WithFields(log.Fields{"message_id": id, "correlation_id": correlationID}).Info("Message delivered")
					return nil
				}
			case mqttsvc.PublishFailureEvent:
				return ev.Err
			}
		}
	}
}
