package middleware

import "github.com/grafana/pyroscope-go"

var profiler *pyroscope.Profiler

// InitProfiling starts continuous profiling against the Pyroscope server at
// endpoint, tagging profiles with the deployment environment.
func InitProfiling(service, env, endpoint string) error {
	p, err := pyroscope.Start(profilingConfig(service, env, endpoint))
	if err != nil {
		return err
	}
	profiler = p
	return nil
}

func profilingConfig(service, env, endpoint string) pyroscope.Config {
	return pyroscope.Config{
		ApplicationName: service,
		ServerAddress:   endpoint,
		Tags: map[string]string{
			"env": env,
		},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	}
}

// StopProfiling flushes and stops the profiler, if running.
func StopProfiling() {
	if profiler != nil {
		_ = profiler.Stop()
		profiler = nil
	}
}
