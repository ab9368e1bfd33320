package main

import (
	"fmt"
	"os"

	taskpipeline "taskpipe/contexts/async-delivery/task-pipeline"
	"taskpipe/internal/app/bootstrap"
)

// Operator CLI for the task pipeline: schema migrations, event emission,
// direct enqueue and dead-job inspection against the configured Postgres.
func main() {
	app := newApp(openPostgres, os.Stdout)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openPostgres() (environment, error) {
	ops, err := bootstrap.BuildOps()
	if err != nil {
		return environment{}, err
	}
	return environment{
		Pipeline: ops.Pipeline,
		Migrate: func() (string, error) {
			result, err := ops.Postgres.Migrate(ops.Logger)
			if err != nil {
				return "", err
			}
			if !result.Applied {
				return fmt.Sprintf("schema already at version %d", result.Version), nil
			}
			return fmt.Sprintf("schema migrated to version %d", result.Version), nil
		},
		Close: ops.Close,
	}, nil
}

// environment is what every subcommand runs against.
type environment struct {
	Pipeline taskpipeline.Module
	Migrate  func() (string, error)
	Close    func() error
}
