package telegram

import "errors"

var ErrMessageDeleted = errors.New("message deleted before delivery was confirmed")

// DeliveryEvent reports the outcome for a sent message. A nil Err means the
// Bot API accepted the message.
type DeliveryEvent struct {
	Key MessageKey
	Err error
}

const defaultDeliveryBuffer = 256

// emit never blocks the send path. When the buffer is full the event is
// handed off to a goroutine until the client is stopped.
func (c *BotClient) emit(event DeliveryEvent) {
	select {
	case c.events <- event:
		return
	default:
	}

	log := c.logger.WithField("message", event.Key.String())
	select {
	case <-c.done:
		log.Warn("Client stopped, dropping delivery event")
		return
	default:
	}

	log.Debug("Delivery buffer full, handing off event")
	c.handoffs.Go(func() {
		select {
		case c.events <- event:
		case <-c.done:
			log.Warn("Client stopped, dropping delivery event")
		}
	})
}

func (c *BotClient) Deliveries() <-chan DeliveryEvent {
	return c.events
}
