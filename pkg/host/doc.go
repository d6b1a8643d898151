// Package host provides an embeddable pipeline runner host.
//
// # Overview
//
// A Host pairs one user-supplied pipeline body with a run controller and an
// HTTP surface for observing sessions: starting and cancelling runs,
// polling logs with an offset, streaming push events, and downloading
// packaged results.
//
// # Basic Usage
//
// Create a host programmatically:
//
//	cfg := &host.Config{
//		Server: host.ServerConfig{
//			Port:        8080,
//			ReadTimeout: 30 * time.Second,
//		},
//		Runner: host.RunnerConfig{
//			WorkDir: "/data/runs",
//		},
//		Logging: host.LoggingConfig{
//			Level:  "info",
//			Format: "json",
//		},
//	}
//
//	h, err := host.New(cfg, myPipeline)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := h.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// # Using with an Existing HTTP Server
//
//	h, err := host.New(cfg, myPipeline)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Mount the host surface under a specific path
//	http.Handle("/pipeline/", http.StripPrefix("/pipeline", h.Handler()))
//
// # Direct Controller Access
//
// Drive runs programmatically without HTTP:
//
//	ctrl := h.Controller()
//	run, err := ctrl.Start(pipeline.Params{"threads": 4})
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("started run: %s\n", run.RunID)
package host
