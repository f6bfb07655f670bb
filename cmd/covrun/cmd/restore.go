package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/psantana5/covrun/internal/coverage"
	"github.com/psantana5/covrun/internal/symbols"
)

var (
	restoreSymbols   string
	restoreBackupDir string
)

var restoreCmd = &cobra.Command{
	Use:   "restore <module>",
	Short: "Restore the original module and symbols from the backup",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestore,
}

func init() {
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().StringVar(&restoreSymbols, "symbols", "", "symbol file (default <module>.pdb)")
	restoreCmd.Flags().StringVar(&restoreBackupDir, "backup-dir", "", "backup directory (default from config, then <module dir>/"+coverage.DefaultBackupDirName+")")
}

func runRestore(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	policy, err := a.cfg.ToPolicy()
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	module := args[0]
	sym := restoreSymbols
	if sym == "" {
		sym = symbols.DefaultSymbolPath(module)
	}
	dir := restoreBackupDir
	if dir == "" {
		dir = a.cfg.Backup.Dir
	}

	restored, err := coverage.Restore(a.fs, policy, module, sym, dir)
	for _, p := range restored {
		fmt.Printf("Restored %s\n", p)
	}
	if err != nil {
		return err
	}
	a.logger.Info("originals restored", map[string]interface{}{"module": module, "files": len(restored)})
	return nil
}
