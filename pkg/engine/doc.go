// Package engine assembles the authorization stores and services into one
// Engine and exposes the operations other parts of the platform call.
//
//	e, err := engine.New(engine.Options{DB: db, Redis: rdb, Config: cfg, Logger: logger, Metrics: metrics})
//	if err != nil {
//		return err
//	}
//	e.Initialize(ctx) // seeds the base roles; failures are logged, not returned
//
//	ok, err := e.HasPermission(ctx, userID, "projects:edit", &projectID)
package engine
