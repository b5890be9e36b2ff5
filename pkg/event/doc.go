// Package event publishes domain events raised by the identity core.
//
// Publishers are fire-and-forget. Compose them as needed:
//
//	async := event.NewAsyncPublisher(event.NewLogPublisher(logger), 128, logger)
//	defer async.Close(ctx)
//	svc := iam.NewUserService(client, roles, settings, encoder, async)
//
// RecordingPublisher captures events in tests.
package event
