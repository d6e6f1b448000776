package bulk

import (
	"context"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
)

// KafkaUploader publishes items to a Kafka topic. Each message is keyed by
// the item's partition key so documents of one type land in one partition.
type KafkaUploader struct {
	Topic    string
	producer sarama.SyncProducer
}

// NewKafkaUploader connects a synchronous producer to hosts.
func NewKafkaUploader(hosts []string, topic string) (*KafkaUploader, error) {
	conf := sarama.NewConfig()
	conf.Version = sarama.V0_10_0_0
	conf.Producer.Return.Successes = true
	conf.Producer.RequiredAcks = sarama.WaitForAll
	producer, err := sarama.NewSyncProducer(hosts, conf)
	if err != nil {
		return nil, errors.Wrap(err, "getting new producer")
	}
	return NewKafkaUploaderFromProducer(producer, topic), nil
}

// NewKafkaUploaderFromProducer wraps an existing producer.
func NewKafkaUploaderFromProducer(p sarama.SyncProducer, topic string) *KafkaUploader {
	return &KafkaUploader{Topic: topic, producer: p}
}

// Upload implements Uploader.
func (k *KafkaUploader) Upload(ctx context.Context, items []Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msgs := make([]*sarama.ProducerMessage, len(items))
	for i, item := range items {
		msgs[i] = &sarama.ProducerMessage{
			Topic: k.Topic,
			Key:   sarama.StringEncoder(item.PartitionKey),
			Value: sarama.ByteEncoder(item.Data),
		}
	}
	return errors.Wrap(k.producer.SendMessages(msgs), "sending messages")
}

// Close implements Uploader.
func (k *KafkaUploader) Close() error {
	return errors.Wrap(k.producer.Close(), "closing producer")
}
