package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"davmigrate/pkg/config"
	"davmigrate/pkg/source"
	"davmigrate/pkg/ui"
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List the entity kinds that can be migrated",
	Run: func(cmd *cobra.Command, args []string) {
		configured := make(map[string]bool)
		if cfg, err := config.Load(configFile, nil); err == nil {
			for _, e := range cfg.Upload.Entities {
				configured[e] = true
			}
		}

		for _, e := range source.DefaultRegistry().Entities() {
			mark := " "
			if configured[e] {
				mark = ui.Green("*")
			}
			fmt.Printf("%s %s\n", mark, e)
		}
		if len(configured) > 0 {
			fmt.Println(ui.Dim("\n* configured in upload.entities"))
		}
	},
}

func init() {
	rootCmd.AddCommand(entitiesCmd)
}
