package commands

import (
	"context"
	"errors"
	"fmt"

	"hwtrack-backend/internal/cache"
	"hwtrack-backend/internal/components/chrono"
	"hwtrack-backend/internal/components/telemetry"
	"hwtrack-backend/internal/homework"
	"hwtrack-backend/internal/portal"
	"hwtrack-backend/internal/service"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// noPortal backs a Service that only ever answers from the cache.
type noPortal struct{}

func (noPortal) Open(context.Context, portal.Credentials) (service.Conn, error) {
	return nil, errors.New("portal access is disabled for cache commands")
}

func openStore() (*cache.Store, chrono.StandardImpl, error) {
	clock, err := chrono.NewStandardImpl(loadedConfig.Timezone)
	if err != nil {
		return nil, chrono.StandardImpl{}, err
	}
	return cache.NewStore(loadedConfig.Cache.Dir, clock, telemetry.SlogAPI{}), clock, nil
}

var cacheJson *bool

func init() {
	cacheJson = cacheShowCmd.Flags().Bool("json", false, "Print the entry as JSON.")

	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheShowCmd)
	cacheCmd.AddCommand(cacheDeleteCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspects and prunes the local result cache.",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists every cached account, newest first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, clock, err := openStore()
		if err != nil {
			return err
		}
		listings, err := store.ListAll()
		if err != nil {
			return err
		}

		maxAge := loadedConfig.Cache.MaxAge.Std()
		t := newTable()
		t.AppendHeader(table.Row{"Account", "Fetched at", "Age", "Expired"})
		for _, l := range listings {
			t.AppendRow(table.Row{
				l.AccountID,
				l.FetchedAt.In(clock.Location()).Format("2006-01-02 15:04:05"),
				formatAge(l.Age),
				l.Age > maxAge,
			})
		}
		t.AppendFooter(table.Row{fmt.Sprintf("%d entries in %s", len(listings), store.Dir())})
		t.Render()
		return nil
	},
}

var cacheShowCmd = &cobra.Command{
	Use:   "show <account id>",
	Short: "Shows every cached assignment of an account, unfiltered.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, clock, err := openStore()
		if err != nil {
			return err
		}
		svc := service.NewService(noPortal{}, store, clock)

		unbounded := 1 << 30
		res, ok := svc.Cached(args[0], homework.Filter{
			Status:              homework.FinishAll,
			IgnoreExpiredDays:   &unbounded,
			IgnoreUnexpiredDays: &unbounded,
		})
		if !ok {
			return fmt.Errorf("no cache found for %s", args[0])
		}
		if *cacheJson {
			return printJSON(res)
		}
		renderAssignments(res)
		return nil
	},
}

var cacheDeleteCmd = &cobra.Command{
	Use:   "delete <account id>...",
	Short: "Deletes the cache entries of the given accounts.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return err
		}
		for _, accountID := range args {
			if err := store.Delete(service.NormalizeAccountID(accountID)); err != nil {
				return err
			}
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Deletes every cache entry.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return err
		}
		return store.ClearAll()
	},
}
