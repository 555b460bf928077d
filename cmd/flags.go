package cmd

import (
	"fmt"
	"strings"

	"github.com/emrgen/catalog/internal/query"
	"github.com/emrgen/catalog/internal/store"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// listFlags are shared by the list commands.
type listFlags struct {
	owners   []string
	ids      []string
	active   string
	custom   string
	orders   []string
	page     int
	pageSize int
}

func (f *listFlags) bind(command *cobra.Command) {
	command.Flags().StringSliceVarP(&f.owners, "owner", "o", nil, "owner ids")
	command.Flags().StringSliceVarP(&f.ids, "id", "i", nil, "logical ids")
	command.Flags().StringVar(&f.active, "active", "include", "active filter: include, exclude or exclusive")
	command.Flags().StringVar(&f.custom, "custom", "include", "custom filter: include, exclude or exclusive")
	command.Flags().StringSliceVar(&f.orders, "order", nil, "order columns, prefix with - to reverse")
	command.Flags().IntVar(&f.page, "page", 0, "page number, starting at 1")
	command.Flags().IntVar(&f.pageSize, "page-size", 0, "page size")
}

func (f *listFlags) arguments() (store.QueryArguments, error) {
	active, err := query.ParseInclusion(f.active)
	if err != nil {
		return store.QueryArguments{}, err
	}
	custom, err := query.ParseInclusion(f.custom)
	if err != nil {
		return store.QueryArguments{}, err
	}

	return store.QueryArguments{
		OwnerIDs: f.owners,
		IDs:      f.ids,
		Active:   active,
		Custom:   custom,
		Orders:   parseOrders(f.orders),
		Page:     f.page,
		PageSize: f.pageSize,
	}, nil
}

// parseOrders turns "name" and "-name" into ascending and descending terms.
func parseOrders(columns []string) []query.Order {
	orders := make([]query.Order, 0, len(columns))
	for _, column := range columns {
		column = strings.TrimSpace(column)
		if column == "" {
			continue
		}
		reverse := strings.HasPrefix(column, "-")
		orders = append(orders, query.Order{Column: strings.TrimPrefix(column, "-"), Reverse: reverse})
	}
	return orders
}

func checkMissingFlags(cmd *cobra.Command, flags []string) error {
	var missingFlags []string
	var providedFlags []string
	for _, required := range flags {
		if !cmd.Flag(required).Changed {
			missingFlags = append(missingFlags, "--"+required)
		} else {
			value := cmd.Flag(required).Value.String()
			providedFlags = append(providedFlags, fmt.Sprintf("--%s=%s", required, value))
		}
	}

	if len(missingFlags) == 0 {
		return nil
	}

	color.Red("missing: %s\n", strings.Join(missingFlags, " "))
	if len(providedFlags) > 0 {
		color.Green("provided: %s\n", strings.Join(providedFlags, " "))
	}
	return fmt.Errorf("missing required flags: %s", strings.Join(missingFlags, " "))
}
