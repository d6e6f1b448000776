package kafka

import (
	"io/ioutil"
	"log"

	"github.com/Shopify/sarama"
	cluster "github.com/bsm/sarama-cluster"
	"github.com/pkg/errors"
)

// Open joins the consumer group and starts consuming the topics.
func (s *Source) Open() error {
	switch s.Type {
	case TypeJSON:
	case TypeAvro:
		if s.RegistryURL == "" {
			return errors.New("avro messages need a schema registry")
		}
	default:
		return errors.Errorf("unsupported kafka message type: '%v'", s.Type)
	}

	// init (custom) config, enable errors and notifications
	sarama.Logger = log.New(ioutil.Discard, "", 0)
	config := cluster.NewConfig()
	config.Config.Version = sarama.V0_10_0_0
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Group.Return.Notifications = true

	consumer, err := cluster.NewConsumer(s.Hosts, s.Group, s.Topics, config)
	if err != nil {
		return errors.Wrap(err, "getting new consumer")
	}
	s.consumer = consumer
	s.marker = consumer
	s.messages = consumer.Messages()

	// consume errors
	go func() {
		for err := range consumer.Errors() {
			s.Log.Printf("kafka error: %v", err)
		}
	}()

	// consume notifications
	go func() {
		for ntf := range consumer.Notifications() {
			s.Log.Debugf("rebalanced: %+v", ntf)
		}
	}()
	return nil
}
