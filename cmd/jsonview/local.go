package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/JonMunkholm/jsonview/internal/config"
	"github.com/JonMunkholm/jsonview/internal/core"
	"github.com/JonMunkholm/jsonview/internal/protocol"
	"github.com/JonMunkholm/jsonview/internal/viewer"
)

// localWorker runs a protocol worker in-process and a viewer client
// talking to it over pipes, the same way a front-end drives a worker
// process.
type localWorker struct {
	client *viewer.Client
	cancel context.CancelFunc
	reqW   *io.PipeWriter
	done   chan struct{}
}

func startLocal(ctx context.Context, cfg *config.Config, opts viewer.Options) *localWorker {
	ctx, cancel := context.WithCancel(ctx)
	logger := slog.Default()
	svc := core.NewService(cfg.ServiceOptions(), nil, logger)

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	w := &localWorker{cancel: cancel, reqW: reqW, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		if err := protocol.Serve(ctx, reqR, respW, svc, protocol.DefaultOptions(), logger); err != nil && ctx.Err() == nil {
			logger.Warn("worker stopped", "error", err)
		}
		svc.CloseAll()
		respW.Close()
	}()

	w.client = viewer.NewClient(respR, reqW, opts, logger)
	return w
}

// Close stops the worker without waiting for ingestion to finish.
func (w *localWorker) Close() {
	w.cancel()
	w.reqW.Close()
	<-w.done
}
