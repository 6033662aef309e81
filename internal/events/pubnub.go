package events

import (
	"context"
	"fmt"

	"ticket-workflow/models"

	pubnub "github.com/pubnub/go"
)

// requestTimeout bounds one PubNub request, in seconds.
const requestTimeout = 5

type PubNubConfig struct {
	PublishKey   string
	SubscribeKey string
	SecretKey    string
	UUID         string
}

type PubNubPublisher struct {
	pn   *pubnub.PubNub
	send func(channel string, event models.Event) error
}

func NewPubNubPublisher(cfg PubNubConfig) *PubNubPublisher {
	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PublishKey
	pnConfig.SubscribeKey = cfg.SubscribeKey
	pnConfig.SecretKey = cfg.SecretKey
	pnConfig.NonSubscribeRequestTimeout = requestTimeout
	if cfg.UUID != "" {
		pnConfig.UUID = cfg.UUID
	}
	p := &PubNubPublisher{pn: pubnub.NewPubNub(pnConfig)}
	p.send = p.execute
	return p
}

func (p *PubNubPublisher) execute(channel string, event models.Event) error {
	_, status, err := p.pn.Publish().
		Channel(channel).
		Message(event).
		Execute()
	if err != nil {
		return err
	}
	return status.Error
}

// Publish returns when PubNub answers or ctx is done, whichever comes first.
// The SDK request takes no context and runs on until requestTimeout.
func (p *PubNubPublisher) Publish(ctx context.Context, channel string, event models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		done <- p.send(channel, event)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("pubnub publish to %s: %w", channel, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pubnub publish to %s: %w", channel, ctx.Err())
	}
}

func (p *PubNubPublisher) Close() error {
	if p.pn != nil {
		p.pn.Destroy()
	}
	return nil
}
