package rabbitmq

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	headerRetry = "x-retry-count"
	headerKey   = "x-job-key"
	headerError = "x-last-error"
)

func retryQueue(stream string, tier int) string {
	return fmt.Sprintf("%s.retry.%d", stream, tier+1)
}

func finalQueue(stream string) string {
	return stream + ".final"
}

// declareStream declares the main queue bound to the exchange, one TTL queue per retry tier
// dead-lettering back into the main queue, and the final queue.
func declareStream(ch *amqp.Channel, exchange, stream string, delays []time.Duration) error {
	if _, err := ch.QueueDeclare(stream, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(stream, stream, exchange, false, nil); err != nil {
		return err
	}
	for i, d := range delays {
		args := amqp.Table{
			"x-message-ttl":             int32(d / time.Millisecond),
			"x-dead-letter-exchange":    exchange,
			"x-dead-letter-routing-key": stream,
		}
		if _, err := ch.QueueDeclare(retryQueue(stream, i), true, false, false, false, args); err != nil {
			return err
		}
	}
	_, err := ch.QueueDeclare(finalQueue(stream), true, false, false, false, nil)
	return err
}

// RetryCount reads the retry header, tolerating the integer widths AMQP tables decode to.
func RetryCount(d amqp.Delivery) int {
	switch v := d.Headers[headerRetry].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	case int8:
		return int(v)
	default:
		return 0
	}
}

func JobKey(d amqp.Delivery) string {
	if k, ok := d.Headers[headerKey].(string); ok && k != "" {
		return k
	}
	return d.MessageId
}

// republishing copies d for the default exchange with the retry headers bumped.
func republishing(d amqp.Delivery, retries int, lastErr error) amqp.Publishing {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[headerRetry] = int32(retries)
	if lastErr != nil {
		msg := lastErr.Error()
		if len(msg) > 512 {
			msg = msg[:512]
		}
		headers[headerError] = msg
	}
	return amqp.Publishing{
		ContentType:  FirstNonEmpty(d.ContentType, "application/json"),
		Body:         d.Body,
		Headers:      headers,
		MessageId:    d.MessageId,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         d.Type,
	}
}

func FirstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
