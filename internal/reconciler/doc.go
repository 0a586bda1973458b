// Package reconciler keeps a running data center in step with its
// configuration file.
//
// A Watcher observes the file with fsnotify, debounces bursts of writes,
// reloads and validates the document and hands the result to an ApplyFunc,
// normally Orchestrator.Reconcile. A document that fails validation is
// reported and skipped; workers keep running on the last good
// configuration.
//
//	w := reconciler.NewWatcher(cfg.Path, func(ctx context.Context, next *config.DataCenterConfig) error {
//	    _, err := orch.Reconcile(ctx, next)
//	    return err
//	})
//	go w.Run(ctx)
package reconciler
