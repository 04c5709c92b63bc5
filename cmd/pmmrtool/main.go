// Command pmmrtool is a maintenance CLI for a pmmr_*.bin directory: it
// inspects backend diagnostics, runs the auditing rehash in pmmr.Validate,
// and drives offline compaction. It is deliberately thin — a tool for
// operating on the accumulator's on-disk files, not a node or wallet.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/mimblewimble/txhashset/pmmr"
	"github.com/mimblewimble/txhashset/pmmrstore"
)

func main() {
	app := &cli.App{
		Name:  "pmmrtool",
		Usage: "inspect, validate, and compact a pmmr_*.bin directory",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "elmt-size", Value: 0, Usage: "fixed leaf element size in bytes, 0 for variable-size"},
		},
		Commands: []*cli.Command{
			inspectCommand(),
			validateCommand(),
			compactCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "pmmrtool:", err)
		os.Exit(1)
	}
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "print backend size, live-leaf, and pruned-root counts",
		ArgsUsage: "<dir>",
		Action: func(c *cli.Context) error {
			dir, err := requireDir(c)
			if err != nil {
				return err
			}
			log := newLogger(c)
			b, err := openBackend(c, dir, log)
			if err != nil {
				return err
			}
			defer b.Release()

			stats := b.GetStats()
			log.Info("backend stats",
				zap.String("dir", dir),
				zap.Uint64("unpruned_size", stats.UnprunedSize),
				zap.Uint64("live_leaves", stats.LiveLeaves),
				zap.Int("pruned_roots", stats.PrunedRoots),
			)
			return nil
		},
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "recompute every interior hash from its children and compare to disk",
		ArgsUsage: "<dir>",
		Action: func(c *cli.Context) error {
			dir, err := requireDir(c)
			if err != nil {
				return err
			}
			log := newLogger(c)
			b, err := openBackend(c, dir, log)
			if err != nil {
				return err
			}
			defer b.Release()

			p := pmmr.At(b, b.UnprunedSize(), log)
			if err := p.Validate(); err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			log.Info("validate ok", zap.String("dir", dir))
			return nil
		},
	}
}

func compactCommand() *cli.Command {
	return &cli.Command{
		Name:      "compact",
		Usage:     "rewrite hash/data files without nodes fully orphaned below cutoff",
		ArgsUsage: "<dir>",
		Flags: []cli.Flag{
			&cli.Uint64Flag{Name: "cutoff", Required: true, Usage: "cutoff position; leaves removed below this position become compactable"},
		},
		Action: func(c *cli.Context) error {
			dir, err := requireDir(c)
			if err != nil {
				return err
			}
			log := newLogger(c)
			b, err := openBackend(c, dir, log)
			if err != nil {
				return err
			}
			defer b.Release()

			cutoff := c.Uint64("cutoff")
			if err := b.CheckCompact(cutoff, nil); err != nil {
				return fmt.Errorf("compact failed: %w", err)
			}
			log.Info("compact ok", zap.String("dir", dir), zap.Uint64("cutoff", cutoff))
			return nil
		},
	}
}

func requireDir(c *cli.Context) (string, error) {
	dir := c.Args().First()
	if dir == "" {
		return "", fmt.Errorf("missing <dir> argument")
	}
	return dir, nil
}

func newLogger(c *cli.Context) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// openBackend opens a Backend[rawElement] sized per --elmt-size: 0 means
// variable-size leaves (pmmr_size.bin companion file), any positive value
// a fixed-size leaf of that many bytes.
func openBackend(c *cli.Context, dir string, log *zap.Logger) (*pmmrstore.Backend[rawElement], error) {
	elmtSize := c.Int("elmt-size")
	fixed := elmtSize > 0
	decode := decodeRaw(fixed, elmtSize)
	return pmmrstore.Open[rawElement](dir, uint16(elmtSize), fixed, decode, pmmrstore.WithLogger(log))
}
