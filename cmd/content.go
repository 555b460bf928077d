package cmd

import (
	"os"
	"slices"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "content commands",
}

func init() {
	contentCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	contentCmd.AddCommand(listContentCmd())
	contentCmd.AddCommand(resolveContentCmd())
	contentCmd.AddCommand(activeContentCmd())
}

func listContentCmd() *cobra.Command {
	var flags listFlags

	command := &cobra.Command{
		Use:   "list",
		Short: "list content versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			queryArgs, err := flags.arguments()
			if err != nil {
				return err
			}

			app, err := loadContext()
			if err != nil {
				return err
			}
			defer app.close()

			contents, total, err := app.service.ListContent(cmd.Context(), queryArgs)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"UUID", "ID", "Version", "Label", "Type", "Namespace"})
			for _, c := range contents {
				table.Append([]string{c.UUID, c.ID, entityVersion(c.EntityVersion), c.Label, c.Type, c.Namespace})
			}
			table.SetFooter([]string{"", "", "", "", "Total", strconv.FormatInt(total, 10)})
			table.Render()
			return nil
		},
	}
	flags.bind(command)

	return command
}

func resolveContentCmd() *cobra.Command {
	var ownerID, contentID string
	var required = []string{"owner", "id"}

	command := &cobra.Command{
		Use:   "resolve",
		Short: "show the content version an owner sees",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkMissingFlags(cmd, required); err != nil {
				return err
			}

			app, err := loadContext()
			if err != nil {
				return err
			}
			defer app.close()

			c, err := app.service.ResolveContent(cmd.Context(), ownerID, contentID)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"UUID", "ID", "Version", "Label", "URL"})
			table.Append([]string{c.UUID, c.ID, entityVersion(c.EntityVersion), c.Label, c.ContentURL})
			table.Render()
			return nil
		},
	}

	command.Flags().StringVarP(&ownerID, "owner", "o", "", "owner id")
	command.Flags().StringVarP(&contentID, "id", "i", "", "logical content id")

	return command
}

func activeContentCmd() *cobra.Command {
	var owners []string

	command := &cobra.Command{
		Use:     "active",
		Short:   "list active content with its enabled flag",
		Example: "catalog content active -o <owner-id>",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadContext()
			if err != nil {
				return err
			}
			defer app.close()

			content, err := app.service.ActiveContent(cmd.Context(), owners...)
			if err != nil {
				return err
			}

			uuids := make([]string, 0, len(content))
			for uuid := range content {
				uuids = append(uuids, uuid)
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"UUID", "Enabled"})
			for _, uuid := range sortedSet(uuids) {
				table.Append([]string{uuid, strconv.FormatBool(content[uuid])})
			}
			table.Render()
			return nil
		},
	}

	command.Flags().StringSliceVarP(&owners, "owner", "o", nil, "owner ids, all owners when empty")

	return command
}

func sortedSet(values []string) []string {
	slices.Sort(values)
	return values
}
