package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entropydb/entity"
	"github.com/entropydb/entity/conn"
	"github.com/entropydb/entity/sync"
)

var apply bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Plan (and with --apply, execute) the DDL script converging the database to entity.Default",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(entity.Default.Entities()) == 0 {
			return fmt.Errorf("sync: the default registry is empty; declare entities before running sync (an empty registry would plan dropping every object)")
		}

		db, err := conn.Open(cfg.DSN)
		if err != nil {
			return err
		}
		defer db.Close()

		planner := sync.NewPlanner(db, cfg.SearchPath)
		script, err := planner.Plan(cmd.Context(), entity.Default)
		if err != nil {
			return err
		}
		if script.Empty() {
			fmt.Println("-- schema is up to date")
			return nil
		}

		fmt.Println(script.SQL())
		if !apply {
			return nil
		}
		return db.Transaction(cmd.Context(), func(tx *conn.Tx) error {
			_, err := tx.Execute(cmd.Context(), script.SQL())
			return err
		})
	},
}

func init() {
	syncCmd.Flags().BoolVar(&apply, "apply", false, "execute the planned script inside a transaction instead of only printing it")
}
