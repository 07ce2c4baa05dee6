package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entropydb/entity/conn"
	reflectpkg "github.com/entropydb/entity/reflect"
)

var reflectCmd = &cobra.Command{
	Use:   "reflect",
	Short: "Introspect the live database catalog and print its tables, sequences, and composite types",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := conn.Open(cfg.DSN)
		if err != nil {
			return err
		}
		defer db.Close()

		schema, err := reflectpkg.New(db).Introspect(cmd.Context(), cfg.SearchPath)
		if err != nil {
			return err
		}

		for _, t := range schema.Tables {
			name := t.Name
			if t.Schema != "" {
				name = t.Schema + "." + t.Name
			}
			var cols []string
			for _, c := range t.Columns {
				cols = append(cols, c.Name+" "+c.DataType)
			}
			fmt.Printf("table %s (%s)\n", name, strings.Join(cols, ", "))
		}
		for _, s := range schema.Sequences {
			fmt.Printf("sequence %s\n", s)
		}
		for _, ct := range schema.CompositeTypes {
			fmt.Printf("composite type %s\n", ct.Name)
		}
		return nil
	},
}
