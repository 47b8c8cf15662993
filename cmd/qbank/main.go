package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/supersix/qbank/pkg/codec"
	"github.com/supersix/qbank/pkg/config"
	"github.com/supersix/qbank/pkg/logging"
	"github.com/supersix/qbank/pkg/question"
)

// app carries what every sub-command needs once flags and config are read.
type app struct {
	configPath string
	storeDir   string
	logLevel   string
	dev        bool

	cfg   *config.Config
	log   *zap.Logger
	codec *codec.Codec
}

func main() {
	// Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "qbank",
		Short:         "Recover, normalize and maintain the encoded question store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Path to YAML config file")
	pf.StringVar(&a.storeDir, "store-dir", "", "Directory holding the .enc partition files (overrides config)")
	pf.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	pf.BoolVar(&a.dev, "dev", false, "Human-readable console logs")

	root.AddCommand(
		newBuildCmd(a),
		newDecodeCmd(a),
		newEncodeCmd(a),
		newDedupCmd(a),
		newMoveCmd(a),
		newAuditCmd(a),
		newExportCmd(a),
		newReviewCmd(a),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.storeDir != "" {
		cfg.StoreDir = a.storeDir
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	log, err := logging.New(cfg.LogLevel, a.dev)
	if err != nil {
		return err
	}
	c, err := codec.New(cfg.Key)
	if err != nil {
		return err
	}
	a.cfg, a.log, a.codec = cfg, log, c
	return nil
}

// parsePartition accepts "kmc J", "kmc/J" or "KMC:j" and returns the
// canonical lower-case college and upper-case block.
func parsePartition(s string) (question.Partition, error) {
	f := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '/' || r == ':'
	})
	if len(f) != 2 {
		return question.Partition{}, fmt.Errorf("invalid partition %q: want \"<college> <block>\"", s)
	}
	return question.Partition{College: strings.ToLower(f[0]), Block: strings.ToUpper(f[1])}, nil
}

// partitionsArg resolves optional "<college> <block>" arguments.
func partitionsArg(args []string) ([]question.Partition, error) {
	var out []question.Partition
	for _, s := range args {
		p, err := parsePartition(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
