package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "db commands",
}

func init() {
	dbCmd.AddCommand(migrateCmd())
}

func migrateCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadContext()
			if err != nil {
				return err
			}
			defer app.close()

			if err := app.store.Migrate(); err != nil {
				return err
			}
			logrus.Infof("migrated %s database", app.cfg.Database.Driver)
			return nil
		},
	}

	return command
}
