package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

func (r *Runtime) Run(ctx context.Context) error {
	r.logger.Info("pulse runtime starting",
		"addr", r.cfg.HTTPAddr,
		"node_url", r.cfg.NodeURL,
		"listener_autostart", r.cfg.ListenerAutostart,
	)

	group, groupCtx := errgroup.WithContext(ctx)

	r.listener.Bind(groupCtx)
	if r.cfg.ListenerAutostart {
		r.listener.Start()
	}

	if r.reporter != nil {
		group.Go(func() error {
			return r.reporter.Start(groupCtx)
		})
	}
	group.Go(func() error {
		err := r.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-groupCtx.Done()
		r.listener.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return r.httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func (r *Runtime) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}
