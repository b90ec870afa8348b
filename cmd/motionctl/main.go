package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"motion-transfer-backend/pkg/client"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := newApp(log).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(log *logrus.Logger) *cli.App {
	return &cli.App{
		Name:  "motionctl",
		Usage: "upload reference videos and follow motion transfer projects",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Value:   "http://localhost:5000",
				Usage:   "API base URL",
				EnvVars: []string{"MOTION_SERVER"},
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "bearer token, when the API requires one",
				EnvVars: []string{"MOTION_TOKEN"},
			},
			&cli.DurationFlag{
				Name:  "interval",
				Value: client.DefaultRefetchInterval,
				Usage: "polling interval while a project is in flight",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "verbose logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				log.SetLevel(logrus.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "upload",
				Usage:     "upload a video and create a pending project",
				ArgsUsage: "<file>",
				Action: func(c *cli.Context) error {
					s := newSession(c, log)
					p, err := s.upload(c.Context, c.Args().First())
					if err != nil {
						return err
					}
					printProject(c, p)
					return nil
				},
			},
			{
				Name:      "process",
				Usage:     "start processing a pending project",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "poll until the project finishes"},
				},
				Action: func(c *cli.Context) error {
					id, err := projectIDArg(c)
					if err != nil {
						return err
					}
					s := newSession(c, log)
					s.query.SetActive(id)
					p, err := s.mutations.Process(c.Context, id)
					if err != nil {
						return err
					}
					if !c.Bool("watch") {
						printProject(c, p)
						return nil
					}
					return s.watch(c)
				},
			},
			{
				Name:      "get",
				Usage:     "show a project",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id, err := projectIDArg(c)
					if err != nil {
						return err
					}
					p, err := newSession(c, log).client.GetProject(c.Context, id)
					if err != nil {
						return err
					}
					printProject(c, p)
					return nil
				},
			},
			{
				Name:      "watch",
				Usage:     "poll a project until it completes or fails",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id, err := projectIDArg(c)
					if err != nil {
						return err
					}
					s := newSession(c, log)
					s.query.SetActive(id)
					return s.watch(c)
				},
			},
			{
				Name:      "run",
				Usage:     "upload a video, start processing and wait for the result",
				ArgsUsage: "<file>",
				Action: func(c *cli.Context) error {
					s := newSession(c, log)
					p, err := s.upload(c.Context, c.Args().First())
					if err != nil {
						return err
					}
					if _, err := s.mutations.Process(c.Context, p.ID); err != nil {
						return err
					}
					return s.watch(c)
				},
			},
		},
	}
}

type session struct {
	client    *client.Client
	query     *client.ProjectQuery
	mutations *client.Mutations
	log       logrus.FieldLogger
}

func newSession(c *cli.Context, log *logrus.Logger) *session {
	api := client.New(c.String("server"), client.WithBearerToken(c.String("token")))

	var last client.Status
	query := client.NewProjectQuery(api,
		client.WithRefetchInterval(c.Duration("interval")),
		client.OnChange(func(s client.Snapshot) {
			entry := log.WithField("project_id", s.ID)
			if s.Err != nil {
				entry.WithError(s.Err).Warn("poll failed")
				return
			}
			if s.Data.Status != last {
				entry.WithField("status", s.Data.Status).Info("status changed")
				last = s.Data.Status
			} else {
				entry.WithField("status", s.Data.Status).Debug("polled")
			}
		}),
	)

	return &session{
		client:    api,
		query:     query,
		mutations: client.NewMutations(api, query, client.LogNotifier{Log: log}),
		log:       log,
	}
}

func (s *session) upload(ctx context.Context, path string) (*client.Project, error) {
	if path == "" {
		return nil, fmt.Errorf("a video file is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video: %w", err)
	}
	defer f.Close()

	return s.mutations.Create(ctx, path, f)
}

func (s *session) watch(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.query.Run(ctx); err != nil {
		return err
	}
	p, err := s.query.Data()
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("no project data")
	}
	printProject(c, p)
	if p.Status == client.StatusFailed {
		return cli.Exit("processing failed", 1)
	}
	return nil
}

func projectIDArg(c *cli.Context) (int, error) {
	id, err := strconv.Atoi(c.Args().First())
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("a positive project id is required, got %q", c.Args().First())
	}
	return id, nil
}

func printProject(c *cli.Context, p *client.Project) {
	w := c.App.Writer
	fmt.Fprintf(w, "id:              %d\n", p.ID)
	fmt.Fprintf(w, "status:          %s\n", p.Status)
	fmt.Fprintf(w, "original video:  %s\n", p.OriginalVideoURL)
	fmt.Fprintf(w, "identity frame:  %s\n", orDash(p.IdentityFrameURL))
	fmt.Fprintf(w, "generated video: %s\n", orDash(p.GeneratedVideoURL))
	fmt.Fprintf(w, "created:         %s\n", p.CreatedAt.Local().Format("2006-01-02 15:04:05"))
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
