package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	defsDir    string
	dataDir    string
	by         string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "bingo-admin",
		Short:         "Offline administration of bingo progress state",
		Long:          "bingo-admin inspects and edits the persisted bingo state. Run it while the server is stopped; the server overwrites state on its next flush.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "./configs/bingo.yaml", "bingo config path (missing file means defaults + BINGO_* env)")
	pf.StringVar(&f.defsDir, "definitions", "", "override definitions_dir")
	pf.StringVar(&f.dataDir, "data", "", "override data_dir")
	pf.StringVar(&f.by, "by", os.Getenv("USER"), "operator name recorded in the audit log")

	root.AddCommand(
		newGamesCmd(f),
		newShowCmd(f),
		newGrantCmd(f),
		newResetGameCmd(f),
		newResetGameAllCmd(f),
		newResetChallengeCmd(f),
		newResetChallengeAllCmd(f),
		newResetPlayerCmd(f),
		newPruneCmd(f),
		newWinsCmd(f),
		newAuditCmd(f),
		newRoundsCmd(f),
		newStateInfoCmd(f),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
