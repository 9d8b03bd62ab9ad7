package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mtransitapps/ca-brandon-transit-bus-parser/agency"
	"github.com/mtransitapps/ca-brandon-transit-bus-parser/metrics"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Lists the feed's routes and how they're handled",
	Args:  cobra.NoArgs,
	RunE:  routes,
}

func init() {
	rootCmd.AddCommand(routesCmd)
}

func routes(cmd *cobra.Command, args []string) error {
	g, err := buildGenerator()
	if err != nil {
		return err
	}
	defer closeGenerator(g)

	schedule, err := loadSchedule(context.Background(), g)
	if err != nil {
		return err
	}

	feedRoutes, err := schedule.Reader.Routes()
	if err != nil {
		return err
	}

	for _, route := range feedRoutes {
		id, err := agency.RouteID(route)
		if err != nil {
			fmt.Printf("%s: %s (%v)\n", route.ID, route.ShortName, err)
			continue
		}

		handling := metrics.HandlingDefault
		if _, found := g.Registry().Lookup(strconv.FormatInt(id, 10)); found {
			handling = metrics.HandlingSpec
		}

		fmt.Printf("%s: %d %s [%s]\n", route.ID, id, agency.RouteLongName(route), handling)
	}

	return nil
}
