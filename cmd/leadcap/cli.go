package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/lead"
	"github.com/hpungsan/leadcap/internal/ops"
	"github.com/hpungsan/leadcap/internal/web"
)

const (
	// maxStdinBytes bounds text read from stdin.
	maxStdinBytes = 1 << 20

	// maxFileBytes bounds audio and image files passed with --file.
	maxFileBytes = 25 << 20
)

// newCLIApp creates the CLI application with all commands. rt may be nil
// when only help or version output is needed.
func newCLIApp(rt *runtime) *cli.App {
	app := &cli.App{
		Name:    "leadcap",
		Usage:   "Offline-first lead capture",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data-dir", Usage: "Data directory (default: $XDG_DATA_HOME/leadcap)"},
			&cli.BoolFlag{Name: "offline", Usage: "Queue captures without contacting the extraction service"},
		},
		Commands: []*cli.Command{
			captureCmd(rt),
			listCmd(rt),
			searchCmd(rt),
			getCmd(rt),
			updateCmd(rt),
			deleteCmd(rt),
			deleteAllCmd(rt),
			queueCmd(rt),
			exportCmd(rt),
			importCmd(rt),
			backupStatusCmd(rt),
			serveCmd(rt),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// captureCmd creates the capture command and its per-modality subcommands.
func captureCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "capture",
		Usage: "Capture a lead from text, a voice note or a business card",
		Subcommands: []*cli.Command{
			{
				Name:  "text",
				Usage: "Capture from text (--text or stdin)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "Freeform text"},
					appendFlag(),
				},
				Action: func(c *cli.Context) error {
					text := c.String("text")
					if text == "" && stdinHasData() {
						var err error
						text, err = readStdin(maxStdinBytes)
						if err != nil {
							return outputError(err)
						}
					}
					return runCapture(c, rt, lead.TextCapture(text))
				},
			},
			{
				Name:  "voice",
				Usage: "Capture from an audio recording",
				Flags: fileFlags(),
				Action: func(c *cli.Context) error {
					data, mimeType, err := readCaptureFile(c.String("file"), c.String("mime"))
					if err != nil {
						return outputError(err)
					}
					return runCapture(c, rt, lead.VoiceCapture(data, mimeType))
				},
			},
			{
				Name:  "card",
				Usage: "Capture from a business card photo",
				Flags: fileFlags(),
				Action: func(c *cli.Context) error {
					data, mimeType, err := readCaptureFile(c.String("file"), c.String("mime"))
					if err != nil {
						return outputError(err)
					}
					return runCapture(c, rt, lead.CardCapture(data, mimeType))
				},
			},
		},
	}
}

// runCapture arms append mode if requested, probes connectivity once and
// runs the capture through the orchestrator.
func runCapture(c *cli.Context, rt *runtime, capture lead.Capture) error {
	ctx := c.Context
	if id := c.String("append-to"); id != "" {
		target, err := ops.Fetch(ctx, rt.db, ops.FetchInput{ID: id})
		if err != nil {
			return outputError(err)
		}
		rt.orch.ArmAppendMode(target.ID, target.DisplayName)
	}

	rt.monitor.Check(ctx)
	result, err := rt.orch.Capture(ctx, capture)
	if err != nil {
		return outputError(err)
	}
	return outputJSON(result)
}

// readCaptureFile reads a capture payload and resolves its MIME type.
func readCaptureFile(path, mimeType string) ([]byte, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", errors.NewFileNotFound(path)
		}
		return nil, "", errors.NewInternal(err)
	}
	if info.IsDir() {
		return nil, "", errors.NewInvalidRequest("path is a directory: " + path)
	}
	if info.Size() > maxFileBytes {
		return nil, "", errors.NewInvalidRequest(fmt.Sprintf("file exceeds %d bytes", maxFileBytes))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", errors.NewInternal(err)
	}
	if mimeType == "" {
		mimeType = mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
		if i := strings.IndexByte(mimeType, ';'); i >= 0 {
			mimeType = mimeType[:i]
		}
	}
	return data, mimeType, nil
}

// listCmd creates the list command.
func listCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List leads, newest first",
		Flags: pageFlags(),
		Action: func(c *cli.Context) error {
			output, err := ops.List(c.Context, rt.db, ops.ListInput{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// searchCmd creates the search command.
func searchCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search leads by name, company or email",
		ArgsUsage: "<query>",
		Flags:     pageFlags(),
		Action: func(c *cli.Context) error {
			query := strings.Join(c.Args().Slice(), " ")
			output, err := ops.Search(c.Context, rt.db, ops.SearchInput{
				Query:  query,
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// getCmd creates the get command.
func getCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show a lead",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.Fetch(c.Context, rt.db, ops.FetchInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// updateCmd creates the update command.
func updateCmd(rt *runtime) *cli.Command {
	fields := []string{"name", "company", "email", "phone", "title", "notes"}
	flags := make([]cli.Flag, 0, len(fields))
	for _, f := range fields {
		flags = append(flags, &cli.StringFlag{Name: f, Usage: "New " + f})
	}

	return &cli.Command{
		Name:      "update",
		Usage:     "Edit lead fields (only the flags given change)",
		ArgsUsage: "<id>",
		Flags:     flags,
		Action: func(c *cli.Context) error {
			input := ops.UpdateInput{ID: c.Args().First()}
			input.Name = optionalString(c, "name")
			input.Company = optionalString(c, "company")
			input.Email = optionalString(c, "email")
			input.Phone = optionalString(c, "phone")
			input.Title = optionalString(c, "title")
			input.Notes = optionalString(c, "notes")

			output, err := ops.Update(c.Context, rt.db, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a lead",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.Delete(c.Context, rt.db, rt.orch, ops.DeleteInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// deleteAllCmd creates the delete-all command.
func deleteAllCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "delete-all",
		Usage: "Delete every lead",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "confirm", Usage: "Required to actually delete"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Purge(c.Context, rt.db, rt.orch, ops.PurgeInput{Confirm: c.Bool("confirm")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// queueCmd creates the queue command and its subcommands.
func queueCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "Inspect and drain deferred captures",
		Subcommands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Show queue counts and items",
				Action: func(c *cli.Context) error {
					output, err := rt.drainer.Status(c.Context)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "drain",
				Usage: "Process every pending capture now",
				Action: func(c *cli.Context) error {
					rt.monitor.Check(c.Context)
					output, err := rt.drainer.Drain(c.Context)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "retry",
				Usage:     "Return a failed capture to pending and drain",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return outputError(errors.NewInvalidRequest("id is required"))
					}
					rt.monitor.Check(c.Context)
					output, err := rt.drainer.Retry(c.Context, id)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "clear",
				Usage: "Drop every queued capture",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "confirm", Usage: "Required to actually clear"},
				},
				Action: func(c *cli.Context) error {
					if !c.Bool("confirm") {
						return outputError(errors.NewInvalidRequest("confirm must be true to clear the queue"))
					}
					n, err := rt.drainer.Clear(c.Context)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]int{"cleared": n})
				},
			},
		},
	}
}

// exportCmd creates the export command.
func exportCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export leads to CSV or JSONL",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output path (default: <data-dir>/exports/leads-<timestamp>.<format>)"},
			&cli.StringFlag{Name: "format", Usage: "csv|jsonl (default: inferred from --path, else csv)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, rt.db, rt.cfg, ops.ExportInput{
				Path:   c.String("path"),
				Format: ops.ExportFormat(c.String("format")),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// importCmd creates the import command.
func importCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import leads from a JSONL export",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "JSONL file to import", Required: true},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "error", Usage: "Collision mode: error|replace|rename"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Import(c.Context, rt.db, rt.cfg, ops.ImportInput{
				Path: c.String("path"),
				Mode: ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// backupStatusCmd creates the backup-status command.
func backupStatusCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "backup-status",
		Usage: "Show when leads were last exported",
		Action: func(c *cli.Context) error {
			output, err := ops.BackupStatus(c.Context, rt.db, rt.cfg, ops.BackupStatusInput{})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// serveCmd creates the serve command: web UI, connectivity monitor and
// background drains.
func serveCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			defer rt.startBackground(ctx)()

			srv := web.NewServer(rt.db, rt.cfg, rt.orch, Version, c.String("bind"), c.Int("port"))
			if err := web.Run(ctx, srv, rt.drainer); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// appendFlag targets an existing lead for a capture.
func appendFlag() cli.Flag {
	return &cli.StringFlag{Name: "append-to", Aliases: []string{"a"}, Usage: "Merge into this lead instead of creating one"}
}

// fileFlags are the flags of the voice and card captures.
func fileFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Path to the recording or photo", Required: true},
		&cli.StringFlag{Name: "mime", Usage: "MIME type (default: inferred from the file extension)"},
		appendFlag(),
	}
}

// pageFlags are the pagination flags shared by list and search.
func pageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Max results (1-100)"},
		&cli.IntFlag{Name: "offset", Value: 0, Usage: "Results to skip"},
	}
}

// optionalString returns a pointer to the flag value only when it was given.
func optionalString(c *cli.Context, name string) *string {
	if !c.IsSet(name) {
		return nil
	}
	v := c.String(name)
	return &v
}

// outputJSON writes JSON to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if lErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", lErr.Code, lErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads up to limit bytes from stdin.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return "", errors.NewInvalidRequest(fmt.Sprintf("stdin exceeds %d bytes", limit))
	}
	return strings.TrimSpace(string(data)), nil
}
