package push

import (
	"context"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"PPulse/module/fanout"
	"PPulse/tools/errs"
)

// Config for the push provider.
type Config struct {
	CredentialsFile string
	ProjectID       string
}

// FCM implements fanout.Pusher over Firebase Cloud Messaging multicast.
// Callers chunk to fanout.PushChunkSize, which matches the provider's
// per-call token maximum.
type FCM struct {
	client *messaging.Client
}

func NewFCM(ctx context.Context, cfg Config) (*FCM, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, errs.Wrap(err, "init firebase app")
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, errs.Wrap(err, "init messaging client")
	}
	return &FCM{client: client}, nil
}

// SendChunk submits one multicast batch. The provider reports per-batch
// counts; individual token errors are not broken out to the caller.
func (f *FCM) SendChunk(ctx context.Context, targets []fanout.Target) (int, error) {
	if len(targets) == 0 {
		return 0, nil
	}

	tokens := make([]string, 0, len(targets))
	for _, t := range targets {
		tokens = append(tokens, t.Token)
	}

	// one payload per chunk: targets of one event share body and data
	msg := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Body: targets[0].Body,
		},
		Data: targets[0].Data,
	}

	resp, err := f.client.SendEachForMulticast(ctx, msg)
	if err != nil {
		return len(targets), err
	}
	return resp.FailureCount, nil
}
