package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func findCommand(t *testing.T, app *cli.App, name string) *cli.Command {
	t.Helper()
	for _, cmd := range app.Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	t.Fatalf("command %q not found", name)
	return nil
}

func findFlag[T cli.Flag](cmd *cli.Command, name string) T {
	var zero T
	for _, flag := range cmd.Flags {
		if f, ok := flag.(T); ok {
			for _, n := range flag.Names() {
				if n == name {
					return f
				}
			}
		}
	}
	return zero
}

func writeSource(t *testing.T, n int) string {
	t.Helper()
	return writeNamedSource(t, "sample.xml", n)
}

func writeNamedSource(t *testing.T, name string, n int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("<PubmedArticleSet>")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "<PubmedArticle><PMID>%d</PMID><ArticleTitle>T%d</ArticleTitle><AbstractText>Abstract %d</AbstractText></PubmedArticle>", i, i, i)
	}
	b.WriteString("</PubmedArticleSet>")
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := newApp()
	app.Writer = &stdout
	app.ErrWriter = &stderr
	err := app.Run(append([]string{"medline"}, args...))
	return stdout.String(), err
}

func TestIngestCommandFlags(t *testing.T) {
	cmd := findCommand(t, newApp(), "ingest")

	t.Run("threshold has default value", func(t *testing.T) {
		f := findFlag[*cli.IntFlag](cmd, "threshold")
		require.NotNil(t, f)
		assert.Equal(t, 100000, f.Value)
		assert.Contains(t, f.Aliases, "t")
	})

	t.Run("flush-policy defaults to continue", func(t *testing.T) {
		f := findFlag[*cli.StringFlag](cmd, "flush-policy")
		require.NotNil(t, f)
		assert.Equal(t, "continue", f.Value)
	})

	t.Run("prefix has default value", func(t *testing.T) {
		f := findFlag[*cli.StringFlag](cmd, "prefix")
		require.NotNil(t, f)
		assert.Equal(t, "pubmed_tempfile", f.Value)
	})

	t.Run("output has no default value", func(t *testing.T) {
		f := findFlag[*cli.StringFlag](cmd, "output")
		require.NotNil(t, f)
		assert.Empty(t, f.Value)
		assert.Empty(t, f.EnvVars)
	})

	t.Run("resume is off by default", func(t *testing.T) {
		f := findFlag[*cli.BoolFlag](cmd, "resume")
		require.NotNil(t, f)
		assert.False(t, f.Value)
	})
}

func TestIngestCommandValidation(t *testing.T) {
	t.Run("missing output fails", func(t *testing.T) {
		_, err := runApp(t, "ingest", writeSource(t, 1))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "output")
	})

	t.Run("missing source fails", func(t *testing.T) {
		_, err := runApp(t, "ingest", "--output", t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "source")
	})

	t.Run("invalid threshold fails", func(t *testing.T) {
		_, err := runApp(t, "ingest", "--output", t.TempDir(), "--threshold", "0", writeSource(t, 1))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "threshold")
	})

	t.Run("invalid flush policy fails", func(t *testing.T) {
		_, err := runApp(t, "ingest", "--output", t.TempDir(), "--flush-policy", "maybe", writeSource(t, 1))
		require.Error(t, err)
	})

	t.Run("invalid workers fails", func(t *testing.T) {
		_, err := runApp(t, "ingest", "--output", t.TempDir(), "--workers", "0", writeSource(t, 1))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "workers")
	})
}

func TestIngestCountStream(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	src := writeSource(t, 5)

	stdout, err := runApp(t, "ingest", "--output", out, "--threshold", "2", src)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Valid records: 5")
	assert.Contains(t, stdout, "Invalid records: 0")
	assert.Contains(t, stdout, "Batch files: 3")

	stdout, err = runApp(t, "count", "--output", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Batch files: 3")
	assert.Contains(t, stdout, "Records: 5")

	stdout, err = runApp(t, "stream", "--output", out, "--limit", "2")
	require.NoError(t, err)
	assert.Equal(t, "1\tAbstract 1\n2\tAbstract 2\n", stdout)

	stdout, err = runApp(t, "stream", "--output", out, "--ids-only")
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n3\n4\n5\n", stdout)

	t.Run("runs lists the checkpoint", func(t *testing.T) {
		stdout, err := runApp(t, "runs", "--output", out)
		require.NoError(t, err)
		assert.Contains(t, stdout, "valid: 5, invalid: 0, batches: 3")
		assert.Contains(t, stdout, "Runs: 1")
	})

	t.Run("resume without source", func(t *testing.T) {
		stdout, err := runApp(t, "ingest", "--output", out, "--resume")
		require.NoError(t, err)
		assert.Contains(t, stdout, "Resumed")
		assert.Contains(t, stdout, "Valid records: 5")
	})
}

func TestMultipleSourcesCountStreamResume(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	a := writeNamedSource(t, "a.xml", 3)
	b := writeNamedSource(t, "b.xml", 2)

	stdout, err := runApp(t, "ingest", "--output", out, "--threshold", "2", a, b)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Valid records: 5")
	assert.Contains(t, stdout, "Batch files: 3")

	stdout, err = runApp(t, "count", "--output", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Runs: 2")
	assert.Contains(t, stdout, "Batch files: 3")
	assert.Contains(t, stdout, "Records: 5")

	stdout, err = runApp(t, "stream", "--output", out, "--ids-only")
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n3\n1\n2\n", stdout)

	stdout, err = runApp(t, "ingest", "--output", out, "--resume")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Resumed")
	assert.Contains(t, stdout, "Valid records: 5")
	assert.Contains(t, stdout, "Batch files: 3")
}

func TestResumeEmptyOutputFails(t *testing.T) {
	_, err := runApp(t, "ingest", "--output", filepath.Join(t.TempDir(), "none"), "--resume")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resume")
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	cfgPath := filepath.Join(dir, "medline.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("output_dir: "+out+"\nthreshold: 1\n"), 0o644))

	stdout, err := runApp(t, "--config", cfgPath, "ingest", writeSource(t, 3))
	require.NoError(t, err)
	assert.Contains(t, stdout, "Batch files: 3")

	t.Run("flags override the file", func(t *testing.T) {
		other := filepath.Join(dir, "other")
		stdout, err := runApp(t, "-c", cfgPath, "ingest", "--output", other, "--threshold", "10", writeSource(t, 3))
		require.NoError(t, err)
		assert.Contains(t, stdout, "Batch files: 1")
		assert.DirExists(t, other)
	})

	t.Run("missing config file fails", func(t *testing.T) {
		_, err := runApp(t, "--config", filepath.Join(dir, "missing.yaml"), "count")
		require.Error(t, err)
	})
}

func TestCountEmptyOutput(t *testing.T) {
	stdout, err := runApp(t, "count", "--output", filepath.Join(t.TempDir(), "none"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "Records: 0")
}

func TestSetupLogger(t *testing.T) {
	t.Run("valid log levels", func(t *testing.T) {
		testCases := []struct {
			input    string
			expected slog.Level
		}{
			{"debug", slog.LevelDebug},
			{"info", slog.LevelInfo},
			{"warn", slog.LevelWarn},
			{"error", slog.LevelError},
		}

		for _, tc := range testCases {
			t.Run(tc.input, func(t *testing.T) {
				app := &cli.App{
					Name: "test",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:  "log-level",
							Value: tc.input,
						},
					},
					Before: setupLogger,
					Action: func(c *cli.Context) error {
						return nil
					},
				}

				err := app.Run([]string{"test", "--log-level", tc.input})
				require.NoError(t, err)
				assert.True(t, slog.Default().Enabled(context.Background(), tc.expected))
			})
		}
	})

	t.Run("case insensitive log levels", func(t *testing.T) {
		for _, tc := range []string{"DEBUG", "Info", "WaRn", "ERROR"} {
			t.Run(tc, func(t *testing.T) {
				app := &cli.App{
					Name: "test",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:  "log-level",
							Value: "info",
						},
					},
					Before: setupLogger,
					Action: func(c *cli.Context) error {
						return nil
					},
				}

				err := app.Run([]string{"test", "--log-level", tc})
				require.NoError(t, err)
			})
		}
	})

	t.Run("invalid log level returns error", func(t *testing.T) {
		_, err := runApp(t, "--log-level", "invalid", "count")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("log-level flag has alias -l", func(t *testing.T) {
		app := &cli.App{
			Name: "test",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "log-level",
					Aliases: []string{"l"},
					Value:   "info",
				},
			},
			Before: setupLogger,
			Action: func(c *cli.Context) error {
				assert.Equal(t, "debug", c.String("log-level"))
				return nil
			},
		}

		err := app.Run([]string{"test", "-l", "debug"})
		require.NoError(t, err)
	})
}

func TestMain(m *testing.M) {
	// Run tests
	code := m.Run()
	os.Exit(code)
}
