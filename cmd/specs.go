package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mtransitapps/ca-brandon-transit-bus-parser/tripspec"
)

var specsCmd = &cobra.Command{
	Use:   "specs",
	Short: "Validates the route trip specs and prints them",
	Args:  cobra.NoArgs,
	RunE:  specs,
}

func init() {
	rootCmd.AddCommand(specsCmd)
}

func specs(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	specs := make([]tripspec.RouteTripSpec, 0, registry.Len())
	for _, routeID := range registry.RouteIDs() {
		spec, _ := registry.Lookup(routeID)
		specs = append(specs, spec.RouteTripSpec())
	}

	return tripspec.WriteSpecs(os.Stdout, specs)
}
