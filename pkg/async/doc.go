// Package async runs best-effort background work with panic recovery,
// timeouts and a drain on shutdown.
//
//	runner := async.NewRunner(logger)
//	runner.Go(ctx, 30*time.Second, "invitation email", func(ctx context.Context) error {
//		return notifier.NotifyInvitation(ctx, notice)
//	})
//	defer runner.Wait(5 * time.Second)
package async
