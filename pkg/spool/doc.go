// Package spool turns request files dropped into a directory into staging
// submissions.
//
// A request file holds a service.Request as YAML (.yaml, .yml) or JSON
// (.json). A relative source_dir is resolved against the spool directory.
// Once submitted the file is renamed to <name>.done; a file that cannot be
// parsed or is rejected is renamed to <name>.failed and the reason written
// next to it as <name>.error.
//
// Writers should create the file elsewhere and rename it into the spool
// directory so the watcher never sees a partial request.
//
//	w, err := spool.New(cfg.Spool.Dir, svc, log)
//	if err != nil {
//		return err
//	}
//	go w.Run(ctx)
package spool
