package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"taskpipe/contexts/async-delivery/task-pipeline/application/commands"

	"github.com/urfave/cli/v2"
)

func newApp(open func() (environment, error), out io.Writer) *cli.App {
	run := func(action func(c *cli.Context, env environment) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			env, err := open()
			if err != nil {
				return err
			}
			if env.Close != nil {
				defer func() { _ = env.Close() }()
			}
			return action(c, env)
		}
	}

	return &cli.App{
		Name:      "queuectl",
		Usage:     "operate the outbox bridge and job queue",
		Writer:    out,
		ErrWriter: out,
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "apply pending schema migrations",
				Action: run(func(c *cli.Context, env environment) error {
					if env.Migrate == nil {
						return errors.New("migrations are not available for this store")
					}
					message, err := env.Migrate()
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(out, message)
					return err
				}),
			},
			{
				Name:  "emit",
				Usage: "append an outbox event",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "event name", Required: true},
					&cli.StringFlag{Name: "metadata", Usage: "JSON object", Value: "{}"},
					&cli.StringFlag{Name: "company-id"},
					&cli.StringFlag{Name: "driver-id"},
					&cli.StringFlag{Name: "request-id"},
					&cli.StringFlag{Name: "ticket-id"},
				},
				Action: run(func(c *cli.Context, env environment) error {
					event, err := env.Pipeline.EmitEvent.Execute(c.Context, commands.EmitEventCommand{
						EventName: c.String("name"),
						Metadata:  json.RawMessage(c.String("metadata")),
						CompanyID: c.String("company-id"),
						DriverID:  c.String("driver-id"),
						RequestID: c.String("request-id"),
						TicketID:  c.String("ticket-id"),
					})
					if err != nil {
						return err
					}
					return printJSON(out, map[string]any{
						"event_id":   event.ID,
						"event_name": event.EventName,
						"created_at": event.CreatedAt,
					})
				}),
			},
			{
				Name:  "enqueue",
				Usage: "enqueue a job directly, bypassing the outbox",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Usage: "job type", Required: true},
					&cli.StringFlag{Name: "payload", Usage: "JSON object", Value: "{}"},
					&cli.StringFlag{Name: "idempotency-key"},
					&cli.IntFlag{Name: "max-attempts"},
					&cli.DurationFlag{Name: "delay", Usage: "run after this delay"},
				},
				Action: run(func(c *cli.Context, env environment) error {
					cmd := commands.EnqueueJobCommand{
						JobType:        c.String("type"),
						Payload:        json.RawMessage(c.String("payload")),
						MaxAttempts:    c.Int("max-attempts"),
						IdempotencyKey: c.String("idempotency-key"),
					}
					if delay := c.Duration("delay"); delay > 0 {
						runAt := time.Now().UTC().Add(delay)
						cmd.RunAt = &runAt
					}
					result, err := env.Pipeline.EnqueueJob.Execute(c.Context, cmd)
					if err != nil {
						return err
					}
					return printJSON(out, map[string]any{
						"job_id":  result.Job.ID,
						"created": result.Created,
					})
				}),
			},
			{
				Name:  "jobs",
				Usage: "inspect and repair jobs",
				Subcommands: []*cli.Command{
					{
						Name:  "dead",
						Usage: "list dead jobs, newest first",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "limit", Value: 50},
						},
						Action: run(func(c *cli.Context, env environment) error {
							jobs, err := env.Pipeline.Queries.ListDeadJobs(c.Context, c.Int("limit"))
							if err != nil {
								return err
							}
							rows := make([]map[string]any, 0, len(jobs))
							for _, job := range jobs {
								rows = append(rows, map[string]any{
									"job_id":     job.ID,
									"job_type":   job.JobType,
									"attempts":   job.Attempts,
									"last_error": job.LastError,
									"updated_at": job.UpdatedAt,
								})
							}
							return printJSON(out, rows)
						}),
					},
					{
						Name:      "requeue",
						Usage:     "move a dead job back to pending",
						ArgsUsage: "<job-id>",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "operator", Usage: "who is requeueing"},
						},
						Action: run(func(c *cli.Context, env environment) error {
							jobID, err := parseID(c.Args().First())
							if err != nil {
								return err
							}
							job, err := env.Pipeline.RequeueJob.Execute(c.Context, jobID, c.String("operator"))
							if err != nil {
								return err
							}
							return printJSON(out, map[string]any{
								"job_id": job.ID,
								"status": job.Status,
								"run_at": job.RunAt,
							})
						}),
					},
					{
						Name:  "stats",
						Usage: "count jobs per status",
						Action: run(func(c *cli.Context, env environment) error {
							stats, err := env.Pipeline.Queries.QueueStats(c.Context)
							if err != nil {
								return err
							}
							return printJSON(out, map[string]int64{
								"pending":    stats.Pending,
								"processing": stats.Processing,
								"done":       stats.Done,
								"dead":       stats.Dead,
							})
						}),
					},
				},
			},
			{
				Name:      "event-status",
				Usage:     "show the effective status of an outbox event",
				ArgsUsage: "<event-id>",
				Action: run(func(c *cli.Context, env environment) error {
					eventID, err := parseID(c.Args().First())
					if err != nil {
						return err
					}
					status, err := env.Pipeline.Queries.EffectiveEventStatus(c.Context, eventID)
					if err != nil {
						return err
					}
					row := map[string]any{
						"event_id":     status.Event.ID,
						"event_name":   status.Event.EventName,
						"queue_status": status.Event.QueueStatus,
						"status":       status.Status,
					}
					if status.Job != nil {
						row["job_id"] = status.Job.ID
					}
					return printJSON(out, row)
				}),
			},
		},
	}
}

func parseID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("id argument is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func printJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
