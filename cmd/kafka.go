package cmd

import (
	"io"

	"github.com/ldkit/ldk/kafka"
	"github.com/spf13/cobra"
)

// KafkaMain is wrapped by NewKafkaCommand and only exported for testing purposes.
var KafkaMain *kafka.Main

// NewKafkaCommand returns a new cobra command wrapping KafkaMain.
func NewKafkaCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	KafkaMain = kafka.NewMain()
	return newIngestCommand("kafka", "Build JSON-LD documents from json or Avro messages in Kafka.", KafkaMain, stderr)
}

func init() {
	subcommandFns["kafka"] = NewKafkaCommand
}
