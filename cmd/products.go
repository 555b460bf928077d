package cmd

import (
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "product commands",
}

func init() {
	productsCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	productsCmd.AddCommand(listProductsCmd())
	productsCmd.AddCommand(resolveProductCmd())
	productsCmd.AddCommand(activeProductsCmd())
}

func listProductsCmd() *cobra.Command {
	var flags listFlags

	command := &cobra.Command{
		Use:     "list",
		Short:   "list product versions",
		Example: "catalog products list -o <owner-id> --active exclusive --order -name",
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

			products, total, err := app.service.ListProducts(cmd.Context(), queryArgs)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"UUID", "ID", "Version", "Name", "Namespace", "Provided"})
			for _, p := range products {
				table.Append([]string{p.UUID, p.ID, entityVersion(p.EntityVersion), p.Name, p.Namespace, strings.Join(p.ProvidedProductUUIDs, ",")})
			}
			table.SetFooter([]string{"", "", "", "", "Total", strconv.FormatInt(total, 10)})
			table.Render()
			return nil
		},
	}
	flags.bind(command)

	return command
}

func resolveProductCmd() *cobra.Command {
	var ownerID, productID string
	var required = []string{"owner", "id"}

	command := &cobra.Command{
		Use:     "resolve",
		Short:   "show the product version an owner sees",
		Example: "catalog products resolve -o <owner-id> -i <product-id>",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkMissingFlags(cmd, required); err != nil {
				return err
			}

			app, err := loadContext()
			if err != nil {
				return err
			}
			defer app.close()

			p, err := app.service.ResolveProduct(cmd.Context(), ownerID, productID)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"UUID", "ID", "Version", "Name", "Derived", "Content"})
			derived := ""
			if p.DerivedProductUUID != nil {
				derived = *p.DerivedProductUUID
			}
			table.Append([]string{p.UUID, p.ID, entityVersion(p.EntityVersion), p.Name, derived, strconv.Itoa(len(p.Contents))})
			table.Render()
			return nil
		},
	}

	command.Flags().StringVarP(&ownerID, "owner", "o", "", "owner id")
	command.Flags().StringVarP(&productID, "id", "i", "", "logical product id")

	return command
}

func activeProductsCmd() *cobra.Command {
	var owners []string

	command := &cobra.Command{
		Use:   "active",
		Short: "list the product versions reachable from valid pools",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadContext()
			if err != nil {
				return err
			}
			defer app.close()

			active, err := app.service.ActiveProducts(cmd.Context(), owners...)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"UUID"})
			for _, uuid := range sortedSet(active.ToSlice()) {
				table.Append([]string{uuid})
			}
			table.Render()
			return nil
		},
	}

	command.Flags().StringSliceVarP(&owners, "owner", "o", nil, "owner ids, all owners when empty")

	return command
}

func entityVersion(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}
