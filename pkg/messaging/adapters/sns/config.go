package sns

import "github.com/sns45/anyq/pkg/messaging"

// Config configures an SNS Producer.
type Config struct {
	Region   string
	TopicARN string

	Base messaging.Config
}
